package types

import "log/slog"

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a credential (Stripe key, webhook signing secret, JWT
// secret) and refuses to print it. String and MarshalJSON both return a
// redacted placeholder, so config dumps and structured logs stay clean.
//
// Call Unmask only where the raw value is handed to a client or driver.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// LogValue keeps the secret out of slog output.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// IsSet reports whether a value was configured.
func (s SecretString) IsSet() bool {
	return s != ""
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string {
	return string(s)
}
