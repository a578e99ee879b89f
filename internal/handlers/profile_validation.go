package handlers

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxDisplayNameLength = 120

func validateProfileUpdateRequest(req updateProfileRequest) string {
	if req.DisplayName == nil {
		return "displayName is required"
	}
	name := strings.TrimSpace(*req.DisplayName)
	if name == "" {
		return "displayName must not be empty"
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return "displayName must be at most 120 characters"
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "displayName must not contain control characters"
		}
	}
	return ""
}
