package schemas

import "github.com/JonMunkholm/medimport/internal/core"

// Beneficiary is the schema for people receiving care during a campaign.
// Rows are keyed by phone number within the campaign.
func Beneficiary() core.Schema {
	fields := []core.FieldSpec{
		lastName(true),
		firstName(true),
		sex(true),
		phone(true),
		address(true),
	}
	fields = append(fields, optional()...)
	fields = append(fields,
		core.FieldSpec{
			Name:    core.Status,
			Type:    core.FieldCode,
			Aliases: []string{"decision", "statut", "etat", "avis", "resultat", "status"},
			Codes:   DecisionCodes,
			Tracked: true,
		},
		notes(),
	)

	return core.Schema{
		Kind:      core.KindBeneficiary,
		Label:     "Beneficiaries",
		Fields:    fields,
		KeyFields: []core.Field{core.Phone},
	}
}
