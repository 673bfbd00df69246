package schemas

import "github.com/JonMunkholm/medimport/internal/core"

// Decision tokens for beneficiaries.
const (
	DecisionAccepted = "accepted"
	DecisionRejected = "rejected"
	DecisionPending  = "pending"
)

// DecisionCodes maps the spellings seen in field sheets to a decision.
var DecisionCodes = core.NewCodeTable(map[string][]string{
	DecisionAccepted: {"accepted", "accepte", "acceptee", "accepte(e)", "admis", "retenu", "retenue", "valide", "validee", "ok", "oui"},
	DecisionRejected: {"rejected", "rejete", "rejetee", "refuse", "refusee", "non retenu", "non", "ko"},
	DecisionPending:  {"pending", "en attente", "attente", "en cours", "a revoir"},
})

// StatusCodes maps the spellings seen in call lists to a participant status.
var StatusCodes = core.NewCodeTable(map[string][]string{
	core.StatusResponded:    {"responded", "repondu", "a repondu", "joint", "contacte", "present", "presente", "oui"},
	core.StatusNoResponse:   {"no_response", "no response", "pas de reponse", "sans reponse", "ne repond pas", "injoignable", "absent", "non"},
	core.StatusNotContacted: {"not_contacted", "not contacted", "non contacte", "non contactee", "a contacter", "pas contacte"},
})
