package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"tether/internal/crypto"
)

var (
	// ErrInvalid wraps every structural validation failure.
	ErrInvalid = errors.New("protocol: invalid message")
	// ErrUnknownType is returned for an unrecognised discriminator.
	ErrUnknownType = errors.New("protocol: unknown message type")
)

// Session ids are base64 or base64url text.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-+/=]{1,128}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("sessionid", func(fl validator.FieldLevel) bool {
		return ValidSessionID(fl.Field().String())
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return Role(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("key32", func(fl validator.FieldLevel) bool {
		b, err := base64.StdEncoding.DecodeString(fl.Field().String())
		return err == nil && len(b) == crypto.KeySize
	})
	_ = v.RegisterValidation("nonce24", func(fl validator.FieldLevel) bool {
		b, err := base64.StdEncoding.DecodeString(fl.Field().String())
		return err == nil && len(b) == crypto.NonceSize
	})
	_ = v.RegisterValidation("relayurl", func(fl validator.FieldLevel) bool {
		return ValidRelayURL(fl.Field().String())
	})
	return v
}

// ValidSessionID reports whether id is an acceptable session identifier.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// ValidRelayURL reports whether s is an absolute ws, wss, http or https URL
// with a host.
func ValidRelayURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
		return true
	}
	return false
}

// check runs struct validation and flattens the result into ErrInvalid.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(parts, "; "))
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}
