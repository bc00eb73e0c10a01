package theme

// Seasonal theme. Select it with MODCORE_THEME=halloween. Only the audit
// roles are overridden; everything else inherits from the defaults.

func init() {
	MustRegister(&Theme{
		Name: "halloween",

		Kick:  0xEB6123, // Pumpkin
		Ban:   0xF28B82, // Pastel red
		Unban: 0x9B59B6, // Purple
		Prune: 0xEB6123, // Pumpkin
	})
}
