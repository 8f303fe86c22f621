package records

import "context"

// RecordLister returns the records a wallet holds for a program. Records are
// untyped because wallets disagree on shape: plain strings, objects with a
// plaintext field, objects with only a ciphertext.
type RecordLister interface {
	ListRecords(ctx context.Context, program string) ([]any, error)
}

// RecordListerFunc adapts a function to RecordLister.
type RecordListerFunc func(ctx context.Context, program string) ([]any, error)

func (f RecordListerFunc) ListRecords(ctx context.Context, program string) ([]any, error) {
	return f(ctx, program)
}

// Decrypter turns a record ciphertext into its plaintext. Wallets usually
// prompt the user on every call.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// DecrypterFunc adapts a function to Decrypter.
type DecrypterFunc func(ctx context.Context, ciphertext string) (string, error)

func (f DecrypterFunc) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return f(ctx, ciphertext)
}

// Capabilities is the set of optional wallet operations a Finder may use.
// Any field may be nil; a nil capability's strategy is skipped.
type Capabilities struct {
	// PlaintextRecords lists records with plaintext included.
	PlaintextRecords RecordLister
	// CiphertextRecords lists records that may carry only ciphertext. Used
	// together with Decrypter.
	CiphertextRecords RecordLister
	Decrypter         Decrypter
	// RecordPlaintexts lists record plaintexts directly.
	RecordPlaintexts RecordLister
	// Fallback is a vendor-specific listing tried last.
	Fallback RecordLister
}

// Empty reports whether no capability is present.
func (c Capabilities) Empty() bool {
	return c.PlaintextRecords == nil && c.CiphertextRecords == nil && c.RecordPlaintexts == nil && c.Fallback == nil
}
