package vectors

// DefaultVectors are seeded into an empty registry on first run. Weights
// follow declaration order.
func DefaultVectors() []Vector {
	return []Vector{
		{
			ID:          "pii_disclosure",
			Label:       "PII disclosure",
			Description: "Personally identifiable information such as names tied to email addresses, phone numbers, postal addresses, or government identifiers.",
			Weight:      0,
		},
		{
			ID:          "credentials_disclosure",
			Label:       "Credentials disclosure",
			Description: "Secrets that grant access: passwords, API keys, tokens, private keys, or connection strings.",
			Weight:      1,
		},
		{
			ID:          "internal_info_disclosure",
			Label:       "Internal information disclosure",
			Description: "Non-public operational details: internal hostnames, IP addresses, file paths, or infrastructure layout.",
			Weight:      2,
		},
	}
}

// EnsureDefaults seeds the default vectors when the registry is empty.
// Called once at startup; a populated registry is left untouched.
func (r *Registry) EnsureDefaults() error {
	vs, err := r.List()
	if err != nil {
		return err
	}
	if len(vs) > 0 {
		return nil
	}
	return r.persist(DefaultVectors())
}
