package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	CivilDateLayout = "2006-01-02"
	CivilTimeLayout = "15:04:05"
)

// CivilStamp formats t in loc as separate date and time strings.
func CivilStamp(t time.Time, loc *time.Location) (string, string) {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(CivilDateLayout), t.Format(CivilTimeLayout)
}

func ValidCivilDate(value string) bool {
	if len(value) != len(CivilDateLayout) {
		return false
	}
	_, err := time.Parse(CivilDateLayout, value)
	return err == nil
}

// ValidCivilTime accepts HH:MM or HH:MM:SS on a 24-hour clock.
func ValidCivilTime(value string) bool {
	switch len(value) {
	case len("15:04"):
		_, err := time.Parse("15:04", value)
		return err == nil
	case len(CivilTimeLayout):
		_, err := time.Parse(CivilTimeLayout, value)
		return err == nil
	default:
		return false
	}
}

func ValidateCivil(date, clock string) error {
	if !ValidCivilDate(strings.TrimSpace(date)) {
		return fmt.Errorf("%w: sentDate must be YYYY-MM-DD", ErrMalformedPayload)
	}
	if !ValidCivilTime(strings.TrimSpace(clock)) {
		return fmt.Errorf("%w: sentTime must be HH:MM or HH:MM:SS", ErrMalformedPayload)
	}
	return nil
}

// CivilLess orders two (date, time) pairs lexically, date first.
func CivilLess(dateA, timeA, dateB, timeB string) bool {
	if dateA != dateB {
		return dateA < dateB
	}
	return timeA < timeB
}
