package redis

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "relay:"

// Key suffixes appended to the prefix.
const (
	suffixEntry = "buf:"      // + event ID, one hash per buffered entry
	suffixIndex = "s:buf:ids" // set of buffered event IDs
)

// Hash fields of a buffered entry.
const (
	fieldBody        = "body"
	fieldAttempts    = "attempts"
	fieldLastAttempt = "last_attempt"
	fieldNextDue     = "next_due"
)

func (s *Store) entryKey(id string) string {
	return s.prefix + suffixEntry + id
}

func (s *Store) indexKey() string {
	return s.prefix + suffixIndex
}
