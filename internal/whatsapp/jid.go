package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"

	appErrors "github.com/HugoP8/whazaaa/internal/errors"
)

// ParseTarget accepts either a full JID ("5491122334455@s.whatsapp.net",
// "1203...@g.us") or a phone number in any punctuation.
func ParseTarget(target string) (types.JID, error) {
	target = strings.TrimSpace(target)
	if strings.Contains(target, "@") {
		jid, err := types.ParseJID(target)
		if err != nil {
			return types.EmptyJID, appErrors.NewValidationError("target", fmt.Sprintf("invalid JID %q: %v", target, err))
		}
		return jid, nil
	}

	var digits strings.Builder
	for _, r := range target {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return types.EmptyJID, appErrors.NewValidationError("target", fmt.Sprintf("invalid phone number %q", target))
	}
	return types.NewJID(digits.String(), types.DefaultUserServer), nil
}
