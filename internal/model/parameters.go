package model

import (
	"fmt"
	"strconv"
)

// Parameter keys written into DeviceSessionRecord.Parameters. The firmware
// reads the weighing keys to compute the nutrition status.
const (
	ParamEatingPattern  = "eatingPattern"
	ParamChildResponse  = "childResponse"
	ParamAgeYears       = "ageYears"
	ParamAgeMonths      = "ageMonths"
	ParamGender         = "gender"
	ParamExpectedRfid   = "expectedRfid"
	ParamTargetUserID   = "targetUserId"
	ParamTargetUserName = "targetUserName"
	ParamManual         = "manual"
)

type WeighingParameters struct {
	EatingPattern string `json:"eatingPattern"`
	ChildResponse string `json:"childResponse"`
	AgeYears      int    `json:"ageYears"`
	AgeMonths     int    `json:"ageMonths"`
	Gender        string `json:"gender"`
	ExpectedRfid  string `json:"expectedRfid"`
}

func (p WeighingParameters) Map() map[string]string {
	return map[string]string{
		ParamEatingPattern: p.EatingPattern,
		ParamChildResponse: p.ChildResponse,
		ParamAgeYears:      strconv.Itoa(p.AgeYears),
		ParamAgeMonths:     strconv.Itoa(p.AgeMonths),
		ParamGender:        p.Gender,
		ParamExpectedRfid:  p.ExpectedRfid,
	}
}

func ParseWeighingParameters(m map[string]string) (WeighingParameters, error) {
	p := WeighingParameters{
		EatingPattern: m[ParamEatingPattern],
		ChildResponse: m[ParamChildResponse],
		Gender:        m[ParamGender],
		ExpectedRfid:  m[ParamExpectedRfid],
	}

	var err error
	if v := m[ParamAgeYears]; v != "" {
		if p.AgeYears, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("parse %s: %w", ParamAgeYears, err)
		}
	}
	if v := m[ParamAgeMonths]; v != "" {
		if p.AgeMonths, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("parse %s: %w", ParamAgeMonths, err)
		}
	}
	return p, nil
}

type PairingParameters struct {
	TargetUserID   string `json:"targetUserId"`
	TargetUserName string `json:"targetUserName"`
	Manual         bool   `json:"manual"`
}

func (p PairingParameters) Map() map[string]string {
	m := map[string]string{
		ParamTargetUserID:   p.TargetUserID,
		ParamTargetUserName: p.TargetUserName,
	}
	if p.Manual {
		m[ParamManual] = "true"
	}
	return m
}

func ParsePairingParameters(m map[string]string) PairingParameters {
	return PairingParameters{
		TargetUserID:   m[ParamTargetUserID],
		TargetUserName: m[ParamTargetUserName],
		Manual:         m[ParamManual] == "true",
	}
}
