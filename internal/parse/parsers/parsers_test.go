package parsers

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/colligo/internal/parse"
)

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func head(tags ...string) string {
	return "<html><head>" + strings.Join(tags, "") + "</head><body></body></html>"
}

func meta(name, content string) string {
	return `<meta name="` + name + `" content="` + content + `">`
}

func TestBuiltin_CoversPlannedPublishers(t *testing.T) {
	factories := Builtin()

	codes := []string{"RSC", "ACS", "Springer", "Wiley", "Nature", "MDPI", "Elsevier", "Frontiers", "T&F"}
	require.Len(t, factories, len(codes))
	for _, code := range codes {
		factory, ok := factories[code]
		require.True(t, ok, "missing factory for %s", code)
		p := factory()
		assert.Equal(t, code, p.Code())
		assert.Equal(t, parse.BackendHTML, p.Backend())
	}
}

func TestCheck_PublisherName(t *testing.T) {
	factories := Builtin()
	page := doc(t, head(meta("citation_publisher", "The Royal Society of Chemistry")))

	ok, err := factories["RSC"]().Check(page)
	require.NoError(t, err)
	assert.True(t, ok, "substring match on the publisher name")

	ok, err = factories["ACS"]().Check(page)
	require.NoError(t, err)
	assert.False(t, ok)

	// Publisher comparison ignores case.
	upper := doc(t, head(meta("citation_publisher", "ROYAL SOCIETY OF CHEMISTRY")))
	ok, err = factories["RSC"]().Check(upper)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheck_DOIPrefixFallback(t *testing.T) {
	factories := Builtin()
	page := doc(t, head(meta("citation_doi", "10.1021/acs.inorgchem.5c01234")))

	ok, err := factories["ACS"]().Check(page)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = factories["RSC"]().Check(page)
	require.NoError(t, err)
	assert.False(t, ok)

	// The prefix must be a whole DOI registrant, not a digit prefix.
	near := doc(t, head(meta("citation_doi", "10.10391/not-rsc")))
	ok, err = factories["RSC"]().Check(near)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheck_NoSignals(t *testing.T) {
	page := doc(t, head(meta("viewport", "width=device-width")))
	for code, factory := range Builtin() {
		ok, err := factory().Check(page)
		require.NoError(t, err)
		assert.False(t, ok, "parser %s matched a page without scholarly tags", code)
	}
}

func TestExtract_CitationTags(t *testing.T) {
	factories := Builtin()
	page := doc(t, head(
		meta("citation_doi", "10.1038/s41586-026-01234-5"),
		meta("citation_publisher", "Nature"),
		meta("citation_journal_title", "Nature Chemistry"),
		meta("citation_title", "Self-assembly of porous frameworks"),
		meta("citation_article_type", "research-article"),
		meta("citation_author_institution", "Department of Chemistry, University A"),
		meta("citation_author_institution", "Institute B"),
		meta("citation_received_date", "2026/01/12"),
		meta("citation_accepted_date", "2026/03/02"),
		meta("citation_publication_date", "2026/04/01"),
	))

	got, err := factories["Nature"]().Extract(page)
	require.NoError(t, err)

	assert.Equal(t, "10.1038/s41586-026-01234-5", got.DOI)
	assert.Equal(t, "Nature", got.Publisher)
	assert.Equal(t, "Nature Chemistry", got.Journal)
	assert.Equal(t, "Self-assembly of porous frameworks", got.Title)
	assert.Equal(t, "research-article", got.PubType)
	assert.Equal(t, []string{
		"Department of Chemistry, University A",
		"Institute B",
	}, got.Affiliations)
	assert.Equal(t, "2026/01/12", got.Received)
	assert.Equal(t, "2026/03/02", got.Accepted)
	assert.Equal(t, "2026/04/01", got.Published)
	assert.True(t, got.Complete())
}

func TestExtract_DublinCoreFallbacks(t *testing.T) {
	factories := Builtin()
	page := doc(t, head(
		meta("DC.Identifier", "10.1002/anie.202600123"),
		meta("DC.Publisher", "Wiley"),
		meta("DC.Source", "Angewandte Chemie"),
		meta("DC.Title", "Catalytic asymmetric synthesis"),
		meta("DC.Type", "article"),
		meta("DC.Date", "2026/02/18"),
	))

	got, err := factories["Wiley"]().Extract(page)
	require.NoError(t, err)

	assert.Equal(t, "10.1002/anie.202600123", got.DOI)
	assert.Equal(t, "Wiley", got.Publisher)
	assert.Equal(t, "Angewandte Chemie", got.Journal)
	assert.Equal(t, "Catalytic asymmetric synthesis", got.Title)
	assert.Equal(t, "article", got.PubType)
	assert.Equal(t, "2026/02/18", got.Published)

	// The review dates have no Dublin Core equivalent.
	assert.Equal(t, []string{"affiliations", "received", "accepted"}, got.Missing())
}

func TestExtract_PublishedDatePreference(t *testing.T) {
	factories := Builtin()

	// citation_publication_date wins over the online and Dublin Core dates.
	page := doc(t, head(
		meta("citation_publication_date", "2026/04/01"),
		meta("citation_online_date", "2026/03/20"),
		meta("DC.Date", "2026/03/01"),
	))
	got, err := factories["RSC"]().Extract(page)
	require.NoError(t, err)
	assert.Equal(t, "2026/04/01", got.Published)

	// Without it, the online date is next.
	page = doc(t, head(
		meta("citation_online_date", "2026/03/20"),
		meta("DC.Date", "2026/03/01"),
	))
	got, err = factories["RSC"]().Extract(page)
	require.NoError(t, err)
	assert.Equal(t, "2026/03/20", got.Published)
}

func TestMetaValues_TrimsAndSkipsEmpty(t *testing.T) {
	page := doc(t, head(
		meta("citation_author_institution", "  Padded Institute  "),
		meta("citation_author_institution", ""),
		meta("citation_author_institution", "Second Institute"),
	))

	values := metaValues(page, "citation_author_institution")
	assert.Equal(t, []string{"Padded Institute", "Second Institute"}, values)
}
