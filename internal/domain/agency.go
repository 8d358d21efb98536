package domain

import "fmt"

// Agency identifies an external regulator.
type Agency string

const (
	AgencyHSE Agency = "hse"
	AgencyEA  Agency = "ea"
)

func (a Agency) Valid() bool {
	switch a {
	case AgencyHSE, AgencyEA:
		return true
	}
	return false
}

func ParseAgency(s string) (Agency, error) {
	a := Agency(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown agency %q", s)
	}
	return a, nil
}

// DataType is the kind of enforcement record a session scrapes.
type DataType string

const (
	DataTypeCase   DataType = "case"
	DataTypeNotice DataType = "notice"
)

func (d DataType) Valid() bool {
	return d == DataTypeCase || d == DataTypeNotice
}

func ParseDataType(s string) (DataType, error) {
	d := DataType(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown data type %q", s)
	}
	return d, nil
}
