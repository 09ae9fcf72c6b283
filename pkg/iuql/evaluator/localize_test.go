package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambeau/iuql/pkg/iuql/parser"
)

func localizedUnit() any {
	iu := unit("org.example.ui", "1.0")
	iu.Properties = map[string]string{
		"org.eclipse.equinox.p2.name":     "%bundleName",
		"org.eclipse.equinox.p2.provider": "Example",
		"df_LT.bundleName":                "Example UI",
		"df_LT.de.bundleName":             "Beispiel-Oberfläche",
		"df_LT.de_CH.bundleName":          "Beispiel-Oberflächli",
		"df_LT.fr.bundleName":             "Interface d'exemple",
		"df_LT.providerName":              "Example Inc.",
		"df_LT.de.providerName":           "Beispiel GmbH",
		"unrelated":                       "x",
	}
	return iu
}

func TestLocalizedKeys(t *testing.T) {
	tests := []struct {
		locale string
		want   []any
	}{
		{"de_CH", []any{"df_LT.de_CH.name", "df_LT.de.name", "df_LT.name"}},
		{"de-CH", []any{"df_LT.de_CH.name", "df_LT.de.name", "df_LT.name"}},
		{"fr", []any{"df_LT.fr.name", "df_LT.name"}},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			got, err := evalPredicate(t, "localizedKeys($0, 'name')", nil, tt.locale)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := evalPredicate(t, "localizedKeys($0, 'name')", nil, 42)
	assert.Equal(t, "ARG-0005", code(err))
}

func TestLocalizedProperty(t *testing.T) {
	iu := localizedUnit()

	tests := []struct {
		locale string
		key    string
		want   any
	}{
		{"de_CH", "org.eclipse.equinox.p2.name", "Beispiel-Oberflächli"},
		{"de_AT", "org.eclipse.equinox.p2.name", "Beispiel-Oberfläche"},
		{"fr_FR", "org.eclipse.equinox.p2.name", "Interface d'exemple"},
		{"ja", "org.eclipse.equinox.p2.name", "Example UI"},
		{"de", "org.eclipse.equinox.p2.provider", "Example"},
		{"de", "missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.locale+"/"+tt.key, func(t *testing.T) {
			got, err := evalPredicate(t, "localizedProperty($0, item, $1)", iu, tt.locale, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocalizedPropertyUntranslated(t *testing.T) {
	iu := unit("a", "1.0")
	iu.Properties = map[string]string{"org.eclipse.equinox.p2.name": "%nothing"}

	got, err := evalPredicate(t, "localizedProperty('en', item, 'org.eclipse.equinox.p2.name')", iu)
	require.NoError(t, err)
	assert.Equal(t, "%nothing", got)
}

func TestLocalizedMap(t *testing.T) {
	got, err := evalPredicate(t, "localizedMap('de_CH', item)", localizedUnit())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"bundleName":   "Beispiel-Oberflächli",
		"providerName": "Beispiel GmbH",
	}, got)

	got, err = evalPredicate(t, "localizedMap('en', item)", localizedUnit())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"bundleName":   "Example UI",
		"providerName": "Example Inc.",
	}, got)
}

func TestLocalizedQueryIsShared(t *testing.T) {
	a, err := localizedQuery(localizedPropertyQuery)
	require.NoError(t, err)
	b, err := localizedQuery(localizedPropertyQuery)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = parser.ParseQuery(localizedPropertyQuery)
	assert.NoError(t, err)
}
