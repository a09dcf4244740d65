package logger

// RedactID masks a visitor identifier for safe logging, keeping just enough
// prefix to correlate entries within one debugging session.
// "2f61a6de-9f4e-4a8b-b0cb-1d5e3a9c7712" → "2f61***"
// Identifiers of ≤4 characters are fully masked.
func RedactID(id string) string {
	if len(id) <= 4 {
		return "***"
	}
	return id[:4] + "***"
}
