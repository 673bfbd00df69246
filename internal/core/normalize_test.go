package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSex(t *testing.T) {
	tests := []struct {
		input string
		want  Value
	}{
		{"M", Enum(SexMale)},
		{"Homme", Enum(SexMale)},
		{"masculin", Enum(SexMale)},
		{"ذكر", Enum(SexMale)},
		{"F", Enum(SexFemale)},
		{"féminin", Enum(SexFemale)},
		{"MME", Enum(SexFemale)},
		{"أنثى", Enum(SexFemale)},
		{"autre", Text("autre")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormalizeSex(tt.input)
			assert.True(t, got.Equal(tt.want), "NormalizeSex(%q) = %v (%s)", tt.input, got, got.Kind())
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already normalized", "0612345678", "0612345678"},
		{"spaces and dots", "06 12.34-56 78", "0612345678"},
		{"lost leading zero on mobile", "612345678", "0612345678"},
		{"lost leading zero on 7 prefix", "712345678", "0712345678"},
		{"nine digits with landline prefix stay as is", "512345678", "512345678"},
		{"international form keeps its digits", "+212 612345678", "212612345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.input, DefaultMobilePrefixes))
		})
	}
}

func TestNormalizePhone_CustomPrefixes(t *testing.T) {
	assert.Equal(t, "0512345678", NormalizePhone("512345678", "5"))
	assert.Equal(t, "612345678", NormalizePhone("612345678", "5"))
}

func TestNormalizeEmail(t *testing.T) {
	got := NormalizeEmail(" John.Doe@Example.COM ")
	assert.Equal(t, "john.doe@example.com", got.Str())

	assert.True(t, NormalizeEmail("not-an-email").IsAbsent())
	assert.True(t, NormalizeEmail("a@b").IsAbsent())
}

func TestNormalizeBool(t *testing.T) {
	for _, in := range []string{"Oui", "yes", "TRUE", "vrai", "1", "o", "x"} {
		b, ok := NormalizeBool(in).Bool()
		assert.True(t, ok && b, "%q should be true", in)
	}
	for _, in := range []string{"Non", "no", "false", "faux", "0", "n"} {
		b, ok := NormalizeBool(in).Bool()
		assert.True(t, ok && !b, "%q should be false", in)
	}
	assert.True(t, NormalizeBool("peut-être").IsAbsent())
}

func TestNormalizeCode(t *testing.T) {
	codes := NewCodeTable(map[string][]string{
		"accepted": {"accepte", "admis"},
		"rejected": {"refuse"},
	})

	assert.Equal(t, "accepted", NormalizeCode(codes, "Accepté").Str())
	assert.Equal(t, "accepted", NormalizeCode(codes, "ADMIS").Str())
	assert.Equal(t, "accepted", NormalizeCode(codes, "accepted").Str())
	assert.Equal(t, "rejected", NormalizeCode(codes, " Refusé ").Str())

	unknown := NormalizeCode(codes, "A  Revoir")
	assert.Equal(t, ValueEnum, unknown.Kind())
	assert.Equal(t, "a revoir", unknown.Str())
}

func TestNormalizeInteger(t *testing.T) {
	n, ok := NormalizeInteger("42").Int()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	n, ok = NormalizeInteger("42.0").Int()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	n, ok = NormalizeInteger("42,0").Int()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	assert.Equal(t, ValueText, NormalizeInteger("42.5").Kind())
	assert.Equal(t, ValueText, NormalizeInteger("quarante").Kind())
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Jean Dupont", NormalizeName("  jean   DUPONT "))
	assert.Equal(t, "Élodie", NormalizeName("élodie"))
}

func TestNormalizer_PhoneWithoutDigitsKeepsText(t *testing.T) {
	n := NewNormalizer()
	spec := FieldSpec{Name: Phone, Type: FieldPhone}

	v := n.Normalize(spec, " n/a  inconnu ")
	assert.False(t, v.IsAbsent())
	assert.Equal(t, "n/a inconnu", v.Str())
	assert.True(t, n.Normalize(spec, "   ").IsAbsent())
}

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer(WithNormalizerClock(fixedClock{testNow}))
	schema := testSchema()

	values := n.NormalizeRow(schema, map[Field]string{
		LastName:  "dupont",
		Phone:     `="612345678"`,
		Sex:       "Femme",
		BirthDate: "33140",
		Status:    "Répondu",
		Email:     "bad address",
	})

	assert.Equal(t, "Dupont", values[LastName].Str())
	assert.Equal(t, "0612345678", values[Phone].Str())
	assert.Equal(t, SexFemale, values[Sex].Str())
	assert.Equal(t, "1990-09-24", values[BirthDate].String())
	assert.Equal(t, StatusResponded, values[Status].Str())
	assert.True(t, values[Email].IsAbsent())
	assert.True(t, values[Age].IsAbsent())
}

func TestNormalizer_BlankCellIsAbsent(t *testing.T) {
	n := NewNormalizer()
	spec, _ := testSchema().Spec(LastName)
	assert.True(t, n.Normalize(spec, "   ").IsAbsent())
	assert.True(t, n.Normalize(spec, `=""`).IsAbsent())
}
