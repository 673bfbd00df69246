package schemas

import (
	"regexp"

	"github.com/JonMunkholm/medimport/internal/core"
)

var (
	minAge int64 = 0
	maxAge int64 = 120
)

// cinPattern accepts national ID numbers: one or two letters then digits.
var cinPattern = regexp.MustCompile(`^[A-Za-z]{1,2}\d{3,8}$`)

func lastName(required bool) core.FieldSpec {
	return core.FieldSpec{
		Name:     core.LastName,
		Type:     core.FieldName,
		Required: required,
		Aliases:  []string{"nom", "nom de famille", "last name", "lastname", "surname", "family name", "اللقب", "الاسم العائلي"},
	}
}

func firstName(required bool) core.FieldSpec {
	return core.FieldSpec{
		Name:     core.FirstName,
		Type:     core.FieldName,
		Required: required,
		Aliases:  []string{"prenom", "first name", "firstname", "given name", "الاسم"},
	}
}

func sex(required bool) core.FieldSpec {
	return core.FieldSpec{
		Name:     core.Sex,
		Type:     core.FieldSex,
		Required: required,
		Aliases:  []string{"sexe", "genre", "sex", "gender", "h/f", "m/f", "الجنس"},
	}
}

func phone(required bool) core.FieldSpec {
	return core.FieldSpec{
		Name:     core.Phone,
		Type:     core.FieldPhone,
		Required: required,
		Aliases:  []string{"telephone", "tel", "tel.", "gsm", "portable", "mobile", "numero de telephone", "num tel", "phone", "phone number", "الهاتف"},
	}
}

func address(required bool) core.FieldSpec {
	return core.FieldSpec{
		Name:     core.Address,
		Type:     core.FieldText,
		Required: required,
		Aliases:  []string{"adresse", "adresse complete", "domicile", "address", "العنوان"},
	}
}

// optional returns the fields both kinds accept but never require.
func optional() []core.FieldSpec {
	return []core.FieldSpec{
		{Name: core.Email, Type: core.FieldEmail, Aliases: []string{"email", "e-mail", "mail", "courriel", "adresse email"}},
		{Name: core.BirthDate, Type: core.FieldDate, Aliases: []string{"date de naissance", "date naissance", "ddn", "ne le", "ne(e) le", "birth date", "birthdate", "date of birth", "dob", "تاريخ الازدياد"}},
		{
			Name:        core.IDNumber,
			Type:        core.FieldText,
			Aliases:     []string{"cin", "cni", "n cin", "numero cin", "carte nationale", "national id"},
			Pattern:     cinPattern,
			PatternHint: "letters followed by digits, e.g. AB123456",
		},
		{Name: core.Age, Type: core.FieldInteger, Aliases: []string{"age", "ans", "العمر"}, Min: &minAge, Max: &maxAge},
		{Name: core.City, Type: core.FieldName, Aliases: []string{"ville", "commune", "localite", "douar", "city", "town"}},
		{Name: core.Insured, Type: core.FieldBool, Aliases: []string{"assure", "assurance", "mutuelle", "ramed", "amo", "insured", "couverture medicale"}},
	}
}

func notes() core.FieldSpec {
	return core.FieldSpec{
		Name:    core.Notes,
		Type:    core.FieldText,
		Aliases: []string{"observations", "observation", "remarques", "remarque", "commentaire", "commentaires", "notes", "comments"},
	}
}
