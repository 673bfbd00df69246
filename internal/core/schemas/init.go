package schemas

import "github.com/JonMunkholm/medimport/internal/core"

func init() {
	core.Register(Beneficiary())
	core.Register(Participant())
}
