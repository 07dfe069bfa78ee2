package tmx

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
	"github.com/standardbeagle/tmxmatch/internal/tm"
)

const omegaT11 = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE tmx SYSTEM "tmx11.dtd">
<tmx version="1.1">
  <header creationtool="OmegaT" o-tmf="OmegaT TMX" adminlang="EN-US" datatype="plaintext" creationtoolversion="4.3.2" segtype="sentence" srclang="EN-US"/>
  <body>
    <!-- Default translations -->
    <tu>
      <tuv lang="EN-US">
        <seg>Hello world.</seg>
      </tuv>
      <tuv lang="FR" changeid="alex" changedate="20120501T093000Z" creationid="alex" creationdate="20120501T093000Z">
        <seg>Bonjour le monde.</seg>
      </tuv>
    </tu>
    <tu>
      <tuv lang="EN-US">
        <seg>Fish &amp; chips &lt;3</seg>
      </tuv>
      <tuv lang="FR" changeid="alex" changedate="20120502T101500Z" creationid="alex" creationdate="20120502T101500Z">
        <seg>Poisson-frites</seg>
      </tuv>
    </tu>
    <!-- Alternative translations -->
    <tu>
      <prop type="file">menu.properties</prop>
      <prop type="id">open.label</prop>
      <tuv lang="EN-US">
        <seg>Open</seg>
      </tuv>
      <tuv lang="FR" changeid="alex" changedate="20120503T000000Z" creationid="alex" creationdate="20120503T000000Z">
        <seg>Ouvert</seg>
      </tuv>
    </tu>
    <!-- Orphaned translations -->
    <tu>
      <tuv lang="EN-US">
        <seg>Old text</seg>
      </tuv>
      <tuv lang="FR">
        <seg>Ancien texte</seg>
      </tuv>
    </tu>
  </body>
</tmx>
`

const tmx14 = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE tmx SYSTEM "tmx14.dtd">
<tmx version="1.4">
  <header creationtool="OmegaT" o-tmf="OmegaT TMX" adminlang="EN-US" datatype="PlainText" creationtoolversion="5.7.1" segtype="sentence" srclang="en" changedate="20200101T000000Z">
    <prop type="x-project">demo</prop>
    <note>header note</note>
  </header>
  <body>
    <!-- Default translations -->
    <tu tuid="1">
      <note>greeting &amp; welcome</note>
      <prop type="x-reviewed">yes</prop>
      <tuv xml:lang="en">
        <seg>Click <bpt i="1">&lt;b&gt;</bpt>Save<ept i="1">&lt;/b&gt;</ept> now<ph>&lt;br/&gt;</ph></seg>
      </tuv>
      <tuv xml:lang="fr" changeid="alex" changedate="20200102T030405Z" creationid="sam" creationdate="20190101T000000Z">
        <seg>Cliquez <bpt i="1">&lt;b&gt;</bpt>Enregistrer<ept i="1">&lt;/b&gt;</ept> maintenant<ph>&lt;br/&gt;</ph></seg>
      </tuv>
      <tuv xml:lang="de">
        <seg>Klicken</seg>
      </tuv>
    </tu>
    <!-- Alternative translations -->
    <tu>
      <prop type="file">menu.properties</prop>
      <prop type="id">open.label</prop>
      <tuv xml:lang="en">
        <seg>Open</seg>
      </tuv>
      <tuv xml:lang="fr" changeid="alex" changedate="20200102T030405Z">
        <seg>Ouvert</seg>
      </tuv>
    </tu>
    <!-- Orphaned translations -->
  </body>
</tmx>
`

var (
	headerStamp = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	changeDate  = regexp.MustCompile(`(<header[^>]*changedate=")[0-9T]+Z(")`)
)

func props(t *testing.T, src, tgt string) *tm.Properties {
	t.Helper()
	p, err := tm.NewProperties(src, tgt)
	require.NoError(t, err)
	return p
}

func roundTrip(t *testing.T, input []byte, p *tm.Properties, now time.Time) []byte {
	t.Helper()
	store, doc, err := Decode(bytes.NewReader(input), p, Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Encode(&out, store, doc, EncodeOptions{Now: func() time.Time { return now }}))
	return out.Bytes()
}

func maskHeaderDate(b []byte) string {
	return changeDate.ReplaceAllString(string(b), "${1}MASKED${2}")
}

func TestRoundTripOmegaT11(t *testing.T) {
	out := roundTrip(t, []byte(omegaT11), props(t, "en-US", "fr"), time.Now())
	assert.Equal(t, omegaT11, string(out))
}

func TestRoundTripCRLFWithBOM(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, strings.ReplaceAll(tmx14, "\n", "\r\n")...)

	out := roundTrip(t, input, props(t, "en", "fr"), headerStamp)
	assert.Equal(t, input, out)

	// a later save differs only in the header changedate
	later := roundTrip(t, input, props(t, "en", "fr"), headerStamp.Add(48*time.Hour))
	assert.NotEqual(t, input, later)
	assert.Equal(t, maskHeaderDate(input), maskHeaderDate(later))
	assert.Contains(t, string(later), `changedate="20200103T000000Z"`)
}

func TestRoundTripUTF16(t *testing.T) {
	src := strings.Replace(omegaT11, `encoding="UTF-8"`, `encoding="UTF-16"`, 1)
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(src))
	require.NoError(t, err)
	input := append([]byte{0xFF, 0xFE}, encoded...)

	store, doc, err := Decode(bytes.NewReader(input), props(t, "en", "fr"), Options{})
	require.NoError(t, err)
	assert.Equal(t, UTF16LE, doc.Encoding)
	assert.True(t, doc.BOM)
	assert.Equal(t, 4, store.Len())

	var out bytes.Buffer
	require.NoError(t, Encode(&out, store, doc, EncodeOptions{}))
	assert.Equal(t, input, out.Bytes())
}

func TestDecodeModel(t *testing.T) {
	store, doc, err := Decode(strings.NewReader(tmx14), props(t, "en", "fr"), Options{})
	require.NoError(t, err)

	assert.Equal(t, "1.4", doc.Version())
	assert.Equal(t, "xml:lang", doc.LangAttr())
	assert.Equal(t, LF, doc.LineEnding)
	assert.False(t, doc.BOM)
	assert.True(t, doc.Sections)
	assert.Len(t, doc.HeaderChildren, 2)

	entries := store.All()
	require.Len(t, entries, 2)

	u := entries[0].Unit
	assert.Equal(t, "Click <g0>Save</g0> now<x1/>", u.Source)
	assert.Equal(t, "Cliquez <g0>Enregistrer</g0> maintenant<x1/>", u.Target)
	assert.Equal(t, "greeting & welcome", u.Note)
	assert.Equal(t, []tm.Prop{{Type: "x-reviewed", Value: "yes"}}, u.Props)
	assert.Equal(t, "alex", u.ChangeID)
	assert.Equal(t, "sam", u.CreationID)
	assert.Equal(t, time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), u.ChangeDate)
	require.NotNil(t, u.Fidelity)
	assert.Len(t, u.Fidelity.ExtraTUVs, 1)
	assert.Equal(t, `<ph>&lt;br/&gt;</ph>`, u.Fidelity.SourceTags[2].Raw)

	alt := entries[1]
	assert.Equal(t, tm.Context{File: "menu.properties", ID: "open.label"}, alt.Key.Context)
	assert.True(t, alt.Unit.Alternative)
}

func TestOrphanSectionRestoresTag(t *testing.T) {
	store, _, err := Decode(strings.NewReader(omegaT11), props(t, "en", "fr"), Options{})
	require.NoError(t, err)

	old, err := tm.DefaultKey("Old text")
	require.NoError(t, err)
	assert.True(t, store.IsOrphaned(old))

	hello, err := tm.DefaultKey("Hello world.")
	require.NoError(t, err)
	assert.False(t, store.IsOrphaned(hello))
	assert.Equal(t, 1, store.Stats().Orphaned)
}

func TestNewlyOrphanedEntryMovesSection(t *testing.T) {
	store, doc, err := Decode(strings.NewReader(omegaT11), props(t, "en", "fr"), Options{})
	require.NoError(t, err)

	hello, err := tm.DefaultKey("Hello world.")
	require.NoError(t, err)
	store.SetOrphaned(hello, true)

	var out bytes.Buffer
	require.NoError(t, Encode(&out, store, doc, EncodeOptions{}))
	s := out.String()
	assert.Greater(t, strings.Index(s, "Hello world."), strings.Index(s, sectionOrphaned))
	assert.Less(t, strings.Index(s, "Fish &amp; chips"), strings.Index(s, sectionAlternative))

	again, _, err := Decode(&out, props(t, "en", "fr"), Options{})
	require.NoError(t, err)
	assert.True(t, again.IsOrphaned(hello))
}

func TestRevisionUpdatesMetadataInPlace(t *testing.T) {
	store, doc, err := Decode(strings.NewReader(omegaT11), props(t, "en", "fr"), Options{})
	require.NoError(t, err)

	key, err := tm.NewKey("Open", tm.Context{File: "menu.properties", ID: "open.label"})
	require.NoError(t, err)
	unit, ok := store.Lookup(key)
	require.True(t, ok)
	_, _, err = store.InsertOrReplace(key, unit.Revise("Ouvrir", "kim", time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Encode(&out, store, doc, EncodeOptions{}))
	assert.Contains(t, out.String(),
		`<tuv lang="FR" changeid="kim" changedate="20210601T120000Z" creationid="alex" creationdate="20120503T000000Z">`+"\n        <seg>Ouvrir</seg>")
}

func TestEncodeNewDocument(t *testing.T) {
	p := props(t, "en-US", "de")
	store := tm.NewStore(p)
	at := time.Date(2022, 2, 2, 2, 2, 2, 0, time.UTC)

	def, err := tm.DefaultKey("Print")
	require.NoError(t, err)
	_, _, err = store.InsertOrReplace(def, tm.NewUnit("Print", "Drucken", "jo", at, false))
	require.NoError(t, err)

	alt, err := tm.NewKey("Print", tm.Context{File: "toolbar.txt", ID: "7", Prev: "Save"})
	require.NoError(t, err)
	_, _, err = store.InsertOrReplace(alt, tm.NewUnit("Print", "Ausdrucken", "jo", at, true))
	require.NoError(t, err)

	gone, err := tm.DefaultKey("Fax & <mail>")
	require.NoError(t, err)
	_, _, err = store.InsertOrReplace(gone, tm.NewUnit("Fax & <mail>", "Fax", "jo", at, false))
	require.NoError(t, err)
	store.SetOrphaned(gone, true)

	var first bytes.Buffer
	now := func() time.Time { return at }
	require.NoError(t, Encode(&first, store, nil, EncodeOptions{Now: now}))
	assert.Contains(t, first.String(), `<tuv xml:lang="en-US">`)
	assert.Contains(t, first.String(), `<tuv xml:lang="de" changeid="jo" changedate="20220202T020202Z" creationid="jo" creationdate="20220202T020202Z">`)
	assert.Contains(t, first.String(), `<seg>Fax &amp; &lt;mail&gt;</seg>`)
	assert.Contains(t, first.String(), `<prop type="prev">Save</prop>`)

	loaded, doc, err := Decode(bytes.NewReader(first.Bytes()), p, Options{})
	require.NoError(t, err)
	require.Equal(t, store.Len(), loaded.Len())
	for i, want := range store.All() {
		got := loaded.At(i)
		assert.Equal(t, want.Key, got.Key)
		assert.Equal(t, want.Unit.Target, got.Unit.Target)
		assert.Equal(t, want.Unit.ChangeDate, got.Unit.ChangeDate)
		assert.Equal(t, want.Orphaned, got.Orphaned)
	}

	var second bytes.Buffer
	require.NoError(t, Encode(&second, loaded, doc, EncodeOptions{Now: now}))
	assert.Equal(t, first.String(), second.String())
}

func TestContextPropsKeptWithoutDefaultTranslationSupport(t *testing.T) {
	p := props(t, "en", "fr")
	p.SupportDefaultTranslations = false

	store, doc, err := Decode(strings.NewReader(omegaT11), p, Options{})
	require.NoError(t, err)

	key, err := tm.DefaultKey("Open")
	require.NoError(t, err)
	u, ok := store.Lookup(key)
	require.True(t, ok)
	assert.False(t, u.Alternative)
	assert.Equal(t, []tm.Prop{{Type: "file", Value: "menu.properties"}, {Type: "id", Value: "open.label"}}, u.Props)

	var out bytes.Buffer
	require.NoError(t, Encode(&out, store, doc, EncodeOptions{}))
	assert.Contains(t, out.String(), `<prop type="file">menu.properties</prop>`)
}

func TestDuplicateEntriesSkipped(t *testing.T) {
	p := props(t, "en", "fr")
	p.SupportDefaultTranslations = false
	input := `<?xml version="1.0" encoding="UTF-8"?>
<tmx version="1.4">
  <header srclang="en"/>
  <body>
    <tu>
      <prop type="file">a.txt</prop>
      <tuv xml:lang="en"><seg>Same</seg></tuv>
      <tuv xml:lang="fr"><seg>Un</seg></tuv>
    </tu>
    <tu>
      <prop type="file">b.txt</prop>
      <tuv xml:lang="en"><seg>Same</seg></tuv>
      <tuv xml:lang="fr"><seg>Deux</seg></tuv>
    </tu>
    <tu>
      <tuv xml:lang="fr"><seg>Sans source</seg></tuv>
    </tu>
  </body>
</tmx>
`
	store, doc, err := Decode(strings.NewReader(input), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 2, doc.Skipped)

	u, ok := store.DefaultTranslation("Same")
	require.True(t, ok)
	assert.Equal(t, "Un", u.Target)
}

func TestLegacyCharsetTranscoded(t *testing.T) {
	input := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<tmx version=\"1.4\">\n  <header srclang=\"en\"/>\n  <body>\n    <tu>\n      <tuv xml:lang=\"en\">\n        <seg>caf\xe9</seg>\n      </tuv>\n      <tuv xml:lang=\"fr\">\n        <seg>caf\xe9 cr\xe8me</seg>\n      </tuv>\n    </tu>\n  </body>\n</tmx>\n")

	store, doc, err := Decode(bytes.NewReader(input), props(t, "en", "fr"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "iso-8859-1", doc.Charset)

	u, ok := store.DefaultTranslation("café")
	require.True(t, ok)
	assert.Equal(t, "café crème", u.Target)

	var out bytes.Buffer
	require.NoError(t, Encode(&out, store, doc, EncodeOptions{}))
	assert.True(t, strings.HasPrefix(out.String(), `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out.String(), "<seg>café crème</seg>")
}

func TestCorruptInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"unknown encoding", `<?xml version="1.0" encoding="x-klingon"?><tmx/>`, 1},
		{"wrong root", "<?xml version=\"1.0\"?>\n<xliff/>\n", 2},
		{"empty", "", 1},
		{"mismatched tags", "<tmx version=\"1.4\">\n<body>\n<tu><tuv xml:lang=\"en\"><seg>x</tuv>\n</tu></body></tmx>", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, doc, err := Decode(strings.NewReader(tt.input), props(t, "en", "fr"), Options{})
			require.Error(t, err)
			assert.Nil(t, store)
			assert.Nil(t, doc)
			assert.True(t, tmerrors.IsCorrupt(err))

			var cse *tmerrors.CorruptStoreError
			require.True(t, errors.As(err, &cse))
			assert.Equal(t, tt.line, cse.Line)
		})
	}
}

func TestPartialLoadKeepsEarlierEntries(t *testing.T) {
	input := `<tmx version="1.4"><header srclang="en"/><body>
<tu><tuv xml:lang="en"><seg>good</seg></tuv><tuv xml:lang="fr"><seg>bon</seg></tuv></tu>
<tu><tuv xml:lang="en"><seg>bad</tuv></tu>
</body></tmx>`

	store, _, err := Decode(strings.NewReader(input), props(t, "en", "fr"), Options{})
	require.Error(t, err)
	assert.Nil(t, store)

	store, doc, err := Decode(strings.NewReader(input), props(t, "en", "fr"), Options{Partial: true})
	require.Error(t, err)
	assert.True(t, tmerrors.IsCorrupt(err))
	require.NotNil(t, store)
	require.NotNil(t, doc)
	assert.Equal(t, 1, store.Len())
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project_save.tmx")
	require.NoError(t, os.WriteFile(path, []byte(omegaT11), 0o600))

	p := props(t, "en", "fr")
	store, doc, err := Load(path, p, Options{})
	require.NoError(t, err)

	require.NoError(t, Save(path, store, doc, EncodeOptions{}))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, omegaT11, string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o600), info.Mode().Perm())

	leftovers, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestSaveFailureLeavesNothingBehind(t *testing.T) {
	p := props(t, "en", "fr")
	err := Save(filepath.Join(t.TempDir(), "missing", "out.tmx"), tm.NewStore(p), nil, EncodeOptions{})
	require.Error(t, err)
	var fe *tmerrors.FileError
	assert.True(t, errors.As(err, &fe))
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.tmx"), props(t, "en", "fr"), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLiteralShortcutTextIsEscaped(t *testing.T) {
	p := props(t, "en", "fr")
	store := tm.NewStore(p)
	key, err := tm.DefaultKey("Type <g0> here")
	require.NoError(t, err)
	_, _, err = store.InsertOrReplace(key, tm.NewUnit(key.Source, "Tapez <g0> ici", "a", time.Now(), false))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Encode(&out, store, nil, EncodeOptions{}))
	assert.Contains(t, out.String(), "<seg>Type &lt;g0&gt; here</seg>")

	loaded, _, err := Decode(&out, p, Options{})
	require.NoError(t, err)
	_, ok := loaded.Lookup(key)
	assert.True(t, ok)
}

func TestShortcutTextBesideInlineMarkup(t *testing.T) {
	p := props(t, "en", "fr")
	input := `<?xml version="1.0" encoding="UTF-8"?>
<tmx version="1.4">
  <header srclang="en"/>
  <body>
    <tu>
      <tuv xml:lang="en">
        <seg>Use &lt;x0/&gt; then <ph>&lt;br/&gt;</ph></seg>
      </tuv>
      <tuv xml:lang="fr">
        <seg>Utilisez &lt;x0/&gt; puis <ph>&lt;br/&gt;</ph></seg>
      </tuv>
    </tu>
  </body>
</tmx>
`
	store, doc, err := Decode(strings.NewReader(input), p, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	u := store.At(0).Unit
	assert.Equal(t, "Use <x0/> then <x1/>", u.Source)
	assert.Equal(t, "Utilisez <x0/> puis <x1/>", u.Target)
	require.Len(t, u.Fidelity.SourceTags, 1)
	assert.Equal(t, "<x1/>", u.Fidelity.SourceTags[0].Shortcut)

	var out bytes.Buffer
	require.NoError(t, Encode(&out, store, doc, EncodeOptions{}))
	assert.Equal(t, input, out.String())

	// a revised target is written from the shortcuts, not the old markup
	key := store.At(0).Key
	_, _, err = store.InsertOrReplace(key, u.Revise("Prenez <x0/> et <x1/>", "kim", headerStamp))
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, Encode(&out, store, doc, EncodeOptions{}))
	assert.Contains(t, out.String(), "<seg>Prenez &lt;x0/&gt; et <ph>&lt;br/&gt;</ph></seg>")
}

func TestPairedShortcutsSkipLiteralNumbers(t *testing.T) {
	input := `<tmx version="1.4"><header srclang="en"/><body>
<tu><tuv xml:lang="en"><seg>&lt;g0&gt; and &lt;x2/&gt; <bpt i="1">&lt;b&gt;</bpt>bold<ept i="1">&lt;/b&gt;</ept><ph/></seg></tuv></tu>
</body></tmx>`
	store, _, err := Decode(strings.NewReader(input), props(t, "en", "fr"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "<g0> and <x2/> <g1>bold</g1><x3/>", store.At(0).Unit.Source)
}

func TestRoundTripWithoutDefaultTranslationSupport(t *testing.T) {
	p := props(t, "en-US", "fr")
	p.SupportDefaultTranslations = false

	out := roundTrip(t, []byte(omegaT11), p, time.Now())
	assert.Equal(t, omegaT11, string(out))
}

func TestCharacterReferencesPreserved(t *testing.T) {
	input := `<?xml version="1.0" encoding="UTF-8"?>
<tmx version="1.4">
  <header srclang="en"/>
  <body>
    <tu>
      <note>It&apos;s &#x41;</note>
      <prop type="x-quote">&quot;q&quot;</prop>
      <tuv xml:lang="en">
        <seg>Say &quot;hi&quot; &#160;now</seg>
      </tuv>
      <tuv xml:lang="fr">
        <seg><![CDATA[Dis <salut>]]> <ph>&#60;br/&#62;</ph></seg>
      </tuv>
    </tu>
  </body>
</tmx>
`
	store, doc, err := Decode(strings.NewReader(input), props(t, "en", "fr"), Options{})
	require.NoError(t, err)

	u := store.At(0).Unit
	assert.Equal(t, "Say \"hi\" \u00a0now", u.Source)
	assert.Equal(t, "It's A", u.Note)
	assert.Equal(t, "Dis <salut> <x0/>", u.Target)

	var out bytes.Buffer
	require.NoError(t, Encode(&out, store, doc, EncodeOptions{}))
	assert.Equal(t, input, out.String())

	// edited text falls back to plain escaping
	_, _, err = store.InsertOrReplace(store.At(0).Key, u.Revise("Dis <bonjour>", "kim", headerStamp))
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, Encode(&out, store, doc, EncodeOptions{}))
	assert.Contains(t, out.String(), "<seg>Dis &lt;bonjour&gt;</seg>")
	assert.Contains(t, out.String(), "<seg>Say &quot;hi&quot; &#160;now</seg>")
}
