package schemas

import "github.com/JonMunkholm/medimport/internal/core"

// Participant is the schema for people contacted during a campaign. The
// same phone may be shared by a household, so the key includes the name.
func Participant() core.Schema {
	fields := []core.FieldSpec{
		lastName(true),
		firstName(true),
		phone(true),
		sex(false),
		address(false),
	}
	fields = append(fields, optional()...)
	fields = append(fields,
		core.FieldSpec{
			Name:    core.Status,
			Type:    core.FieldCode,
			Aliases: []string{"statut", "status", "reponse", "suivi", "etat", "appel"},
			Codes:   StatusCodes,
			Tracked: true,
		},
		notes(),
	)

	return core.Schema{
		Kind:        core.KindParticipant,
		Label:       "Participants",
		Fields:      fields,
		KeyFields:   []core.Field{core.LastName, core.FirstName, core.Phone},
		BucketField: core.Status,
	}
}
