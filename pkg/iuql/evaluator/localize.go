package evaluator

import (
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"github.com/sambeau/iuql/pkg/iuql/ast"
	perrors "github.com/sambeau/iuql/pkg/iuql/errors"
	"github.com/sambeau/iuql/pkg/iuql/parser"
)

// Translations live in a unit's properties under df_LT.<locale>.<key>,
// with df_LT.<key> as the untranslated default. A property whose value
// starts with '%' names the key to translate.
const localizationPrefix = "df_LT."

const localizedPropertyQuery = "localizedKeys($0, $2).collect(k | $1.properties[k]).first(v | v != null)"

var localeSegment = regexp.MustCompile(`^[a-z]{2,3}(_[A-Z]{2})?$`)

var propertiesMember = &ast.Member{Name: "properties"}

// localizedQueries holds the parsed helper queries shared by every
// evaluation in the process.
var localizedQueries = struct {
	sync.Mutex
	parsed map[string]*ast.ContextExpression
}{parsed: make(map[string]*ast.ContextExpression)}

func localizedQuery(text string) (*ast.ContextExpression, error) {
	localizedQueries.Lock()
	defer localizedQueries.Unlock()
	if q, ok := localizedQueries.parsed[text]; ok {
		return q, nil
	}
	q, err := parser.ParseQuery(text)
	if err != nil {
		return nil, err
	}
	localizedQueries.parsed[text] = q
	return q, nil
}

// localeVariants returns the locale names to try, most specific first:
// language_REGION, then language.
func localeVariants(function string, locale any) ([]string, error) {
	var tag language.Tag
	switch l := locale.(type) {
	case language.Tag:
		tag = l
	case string:
		t, err := language.Parse(strings.ReplaceAll(l, "_", "-"))
		if err != nil {
			return nil, perrors.Wrap("ARG-0005", err, map[string]any{"Function": function, "Expected": "a locale", "Got": l})
		}
		tag = t
	default:
		return nil, perrors.New("ARG-0005", map[string]any{"Function": function, "Expected": "a locale", "Got": typeName(locale)})
	}

	base, _, region := tag.Raw()
	var variants []string
	if b := base.String(); b != "und" {
		if r := region.String(); r != "ZZ" {
			variants = append(variants, b+"_"+r)
		}
		variants = append(variants, b)
	}
	return variants, nil
}

// localizedKeys returns the property keys that may hold the translation
// of key, best first.
func localizedKeys(locale, key any) (any, error) {
	variants, err := localeVariants(ast.CtorLocalizedKeys, locale)
	if err != nil {
		return nil, err
	}
	k, ok := key.(string)
	if !ok {
		return nil, perrors.New("ARG-0003", map[string]any{"Function": ast.CtorLocalizedKeys, "Got": typeName(key)})
	}
	keys := make([]any, 0, len(variants)+1)
	for _, v := range variants {
		keys = append(keys, localizationPrefix+v+"."+k)
	}
	return append(keys, localizationPrefix+k), nil
}

// localizedMap returns every translation a unit carries for locale, keyed
// by the untranslated key. A more specific locale wins over a less
// specific one, which wins over the default.
func localizedMap(ctx *Context, locale, unit any) (any, error) {
	variants, err := localeVariants(ast.CtorLocalizedMap, locale)
	if err != nil {
		return nil, err
	}
	props, err := member(propertiesMember, unit)
	if err != nil {
		return nil, err
	}
	bag, ok := props.(map[string]string)
	if !ok {
		return nil, perrors.New("ARG-0005", map[string]any{"Function": ast.CtorLocalizedMap, "Expected": "a unit with string properties", "Got": typeName(unit)})
	}

	out := make(map[string]any)
	rank := make(map[string]int)
	for k, v := range bag {
		rest, ok := strings.CutPrefix(k, localizationPrefix)
		if !ok {
			continue
		}
		name, r := rest, len(variants)
		if seg, after, found := strings.Cut(rest, "."); found && localeSegment.MatchString(seg) {
			r = -1
			for i, variant := range variants {
				if seg == variant {
					r = i
					break
				}
			}
			if r < 0 {
				continue
			}
			name = after
		}
		if prev, seen := rank[name]; seen && prev <= r {
			continue
		}
		rank[name] = r
		out[name] = v
	}
	if ctx.Logger != nil {
		ctx.Logger.Debug("localized map", "locale", locale, "entries", len(out))
	}
	return out, nil
}

// localizedProperty returns the value of a unit property, translated for
// locale when the value is a '%key' reference. An untranslatable
// reference is returned as is.
func localizedProperty(ctx *Context, locale, unit, key any) (any, error) {
	k, ok := key.(string)
	if !ok {
		return nil, perrors.New("ARG-0003", map[string]any{"Function": ast.CtorLocalizedProperty, "Got": typeName(key)})
	}
	var raw any
	if pg, ok := unit.(PropertyGetter); ok {
		raw, _ = pg.Property(k)
	} else {
		props, err := member(propertiesMember, unit)
		if err != nil {
			return nil, err
		}
		if raw, err = index(props, k); err != nil {
			return nil, err
		}
	}

	s, ok := raw.(string)
	if !ok || !strings.HasPrefix(s, "%") {
		return normalize(raw), nil
	}

	q, err := localizedQuery(localizedPropertyQuery)
	if err != nil {
		return nil, err
	}
	sub := &Context{
		Parameters: []any{locale, unit, s[1:]},
		Factory:    ctx.Factory,
		Logger:     ctx.Logger,
	}
	v, err := Evaluate(q, sub, nil)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return s, nil
	}
	return v, nil
}
