package adminsearch

import (
	"fmt"
	"net/netip"
	"reflect"
	"testing"

	"shrike/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSearchTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if err := db.AutoMigrate(
		&domain.User{},
		&domain.ModerationJob{},
		&domain.AbuseReport{},
		&domain.ActivityLog{},
		&domain.IPLog{},
		&domain.Addon{},
		&domain.Collection{},
		&domain.CollectionAddon{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	return db
}

func reportListConfig() ListConfig {
	return ListConfig{
		Table:        "abuse_reports",
		SearchFields: []string{"=guid", "message", "reporter.email", "reporter.username"},
		Relations: map[string]RelationSpec{
			"reporter": {Join: "LEFT JOIN users AS reporter ON reporter.id = abuse_reports.reporter_id"},
		},
		IPSearch: &IPSearchConfig{
			TargetType: "abuse_report",
			Actions:    []int{domain.ActionReportSubmitted, domain.ActionReportAppealed},
		},
	}
}

type reportRow struct {
	ID          uint64
	GUID        string
	Message     string
	ActivityIPs string
}

func createReport(t *testing.T, db *gorm.DB, guid, message string, reporter *domain.User) domain.AbuseReport {
	t.Helper()
	report := domain.AbuseReport{GUID: guid, Message: message}
	if reporter != nil {
		report.ReporterID = &reporter.ID
	}
	if err := db.Create(&report).Error; err != nil {
		t.Fatalf("create report: %v", err)
	}
	return report
}

func logReportIP(t *testing.T, db *gorm.DB, report domain.AbuseReport, action int, ip string) {
	t.Helper()
	activity := domain.ActivityLog{
		Action:     action,
		TargetType: "abuse_report",
		TargetID:   report.ID,
	}
	if err := db.Create(&activity).Error; err != nil {
		t.Fatalf("create activity log: %v", err)
	}
	ipLog := domain.IPLog{ActivityLogID: activity.ID}
	ipLog.SetIP(netip.MustParseAddr(ip))
	if err := db.Create(&ipLog).Error; err != nil {
		t.Fatalf("create ip log: %v", err)
	}
}

func searchReports(t *testing.T, db *gorm.DB, cfg ListConfig, raw string) ([]reportRow, bool) {
	t.Helper()
	cls := Classify(raw, cfg.numericThreshold())
	query, dup := Apply(db.Model(&domain.AbuseReport{}), cfg, cls)

	var rows []reportRow
	if err := query.Order("abuse_reports.id").Scan(&rows).Error; err != nil {
		t.Fatalf("search %q: %v", raw, err)
	}
	return rows, dup
}

func rowGUIDs(rows []reportRow) []string {
	guids := make([]string, len(rows))
	for i, row := range rows {
		guids[i] = row.GUID
	}
	return guids
}

func TestApplyTextSearchJoinsOR(t *testing.T) {
	db := setupSearchTestDB(t)
	cfg := reportListConfig()

	alice := domain.User{Email: "alice@example.com", Username: "alice", Password: "password1"}
	bob := domain.User{Email: "bob@example.com", Username: "bob", Password: "password1"}
	if err := db.Create(&alice).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := db.Create(&bob).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	createReport(t, db, "@one", "broken popup", &alice)
	createReport(t, db, "@two", "spam everywhere", &bob)
	createReport(t, db, "@three", "unrelated", nil)

	rows, dup := searchReports(t, db, cfg, "alice,bob")
	if dup {
		t.Error("single-valued reporter relation should not flag duplicates")
	}
	if got := rowGUIDs(rows); !reflect.DeepEqual(got, []string{"@one", "@two"}) {
		t.Errorf("OR search matched %v, want [@one @two]", got)
	}
}

func TestApplyTextSearchSingleTermIsAND(t *testing.T) {
	db := setupSearchTestDB(t)
	cfg := reportListConfig()

	createReport(t, db, "@one", "alice reported this add-on", nil)
	createReport(t, db, "@two", "alice", nil)

	// Without a comma the whole string is one term, not two AND'd words.
	rows, _ := searchReports(t, db, cfg, "alice reported")
	if got := rowGUIDs(rows); !reflect.DeepEqual(got, []string{"@one"}) {
		t.Errorf("AND search matched %v, want [@one]", got)
	}
}

func TestApplyWildcardSearch(t *testing.T) {
	db := setupSearchTestDB(t)
	cfg := reportListConfig()

	alice := domain.User{Email: "alice@example.com", Username: "alice", Password: "password1"}
	if err := db.Create(&alice).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	createReport(t, db, "@one", "something", &alice)
	createReport(t, db, "@two", "other", nil)

	rows, _ := searchReports(t, db, cfg, "al*ce")
	if got := rowGUIDs(rows); !reflect.DeepEqual(got, []string{"@one"}) {
		t.Errorf("wildcard search matched %v, want [@one]", got)
	}
}

func TestApplyExactSigil(t *testing.T) {
	db := setupSearchTestDB(t)
	cfg := reportListConfig()

	createReport(t, db, "@guid", "message", nil)
	createReport(t, db, "@guid-longer", "message", nil)

	// "=guid" is an exact lookup: the shorter guid must not match as a
	// substring of the longer one when the term equals it exactly.
	rows, _ := searchReports(t, db, cfg, "@GUID")
	if got := rowGUIDs(rows); !reflect.DeepEqual(got, []string{"@guid"}) {
		t.Errorf("exact sigil matched %v, want [@guid]", got)
	}
}

func TestApplyBulkIDSearch(t *testing.T) {
	db := setupSearchTestDB(t)
	cfg := reportListConfig()

	for i, guid := range []string{"@one", "@two", "@three"} {
		report := domain.AbuseReport{ID: uint64(100 + i), GUID: guid}
		if err := db.Create(&report).Error; err != nil {
			t.Fatalf("create report: %v", err)
		}
	}

	rows, dup := searchReports(t, db, cfg, "100,102")
	if dup {
		t.Error("bulk id search should not flag duplicates")
	}
	if got := rowGUIDs(rows); !reflect.DeepEqual(got, []string{"@one", "@three"}) {
		t.Errorf("bulk id search matched %v, want [@one @three]", got)
	}
}

func TestApplyIPSearch(t *testing.T) {
	db := setupSearchTestDB(t)
	cfg := reportListConfig()

	reportOne := createReport(t, db, "@one", "first", nil)
	reportTwo := createReport(t, db, "@two", "second", nil)
	reportThree := createReport(t, db, "@three", "third", nil)

	logReportIP(t, db, reportOne, domain.ActionReportSubmitted, "10.0.0.1")
	logReportIP(t, db, reportOne, domain.ActionReportSubmitted, "10.0.0.9")
	logReportIP(t, db, reportTwo, domain.ActionReportAppealed, "10.0.0.6")
	// Action outside the allow-list: must never match an IP search.
	logReportIP(t, db, reportThree, domain.ActionLogin, "10.0.0.1")

	rows, dup := searchReports(t, db, cfg, "10.0.0.1,10.0.0.5-10.0.0.8")
	if dup {
		t.Error("grouped IP search should not flag duplicates")
	}
	if got := rowGUIDs(rows); !reflect.DeepEqual(got, []string{"@one", "@two"}) {
		t.Fatalf("IP search matched %v, want [@one @two]", got)
	}

	// The aggregation lists every known address for the row, not just the
	// ones that matched.
	ips := SplitActivityIPs(rows[0].ActivityIPs)
	if !reflect.DeepEqual(ips, []string{"10.0.0.1", "10.0.0.9"}) {
		t.Errorf("known addresses = %v, want [10.0.0.1 10.0.0.9]", ips)
	}
}

func TestApplyIPAnnotationWithoutIPSearch(t *testing.T) {
	db := setupSearchTestDB(t)
	cfg := reportListConfig()

	report := createReport(t, db, "@one", "first", nil)
	logReportIP(t, db, report, domain.ActionReportSubmitted, "10.0.0.2")
	logReportIP(t, db, report, domain.ActionReportSubmitted, "10.0.0.2")

	// IP-enabled lists always carry the aggregated address column, even
	// when the query is empty or free text.
	rows, dup := searchReports(t, db, cfg, "")
	if dup {
		t.Error("empty search should not flag duplicates")
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if got := SplitActivityIPs(rows[0].ActivityIPs); !reflect.DeepEqual(got, []string{"10.0.0.2"}) {
		t.Errorf("known addresses = %v, want deduplicated [10.0.0.2]", got)
	}
}

func TestApplyIPv6Search(t *testing.T) {
	db := setupSearchTestDB(t)
	cfg := reportListConfig()

	report := createReport(t, db, "@one", "first", nil)
	logReportIP(t, db, report, domain.ActionReportSubmitted, "2001:db8::5")
	other := createReport(t, db, "@two", "second", nil)
	logReportIP(t, db, other, domain.ActionReportSubmitted, "2001:db9::5")

	rows, _ := searchReports(t, db, cfg, "2001:db8::/32")
	if got := rowGUIDs(rows); !reflect.DeepEqual(got, []string{"@one"}) {
		t.Errorf("IPv6 network search matched %v, want [@one]", got)
	}
}

func TestApplyMultiRelationFlagsDuplicates(t *testing.T) {
	db := setupSearchTestDB(t)

	cfg := ListConfig{
		Table:        "collections",
		SearchFields: []string{"slug", "addons.name"},
		Relations: map[string]RelationSpec{
			"addons": {
				Join: "JOIN collection_addons ON collection_addons.collection_id = collections.id" +
					" JOIN addons ON addons.id = collection_addons.addon_id",
				Multi: true,
			},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}

	collection := domain.Collection{Slug: "favourites"}
	if err := db.Create(&collection).Error; err != nil {
		t.Fatalf("create collection: %v", err)
	}
	addon := domain.Addon{GUID: "@widget", Name: "Widget Maker", Slug: "widget-maker"}
	if err := db.Create(&addon).Error; err != nil {
		t.Fatalf("create addon: %v", err)
	}
	member := domain.CollectionAddon{CollectionID: collection.ID, AddonID: addon.ID}
	if err := db.Create(&member).Error; err != nil {
		t.Fatalf("create collection addon: %v", err)
	}

	cls := Classify("widget", cfg.numericThreshold())
	query, dup := Apply(db.Model(&domain.Collection{}), cfg, cls)
	if !dup {
		t.Error("multi-valued relation should flag possible duplicates")
	}

	var slugs []string
	if err := query.Pluck("collections.slug", &slugs).Error; err != nil {
		t.Fatalf("pluck: %v", err)
	}
	if !reflect.DeepEqual(slugs, []string{"favourites"}) {
		t.Errorf("relation search matched %v, want [favourites]", slugs)
	}
}

func TestListConfigValidate(t *testing.T) {
	cfg := reportListConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	broken := reportListConfig()
	broken.SearchFields = append(broken.SearchFields, "job.decision")
	if err := broken.Validate(); err == nil {
		t.Fatal("expected unknown relation to fail validation")
	}

	empty := reportListConfig()
	empty.Table = ""
	if err := empty.Validate(); err == nil {
		t.Fatal("expected missing table to fail validation")
	}
}

func TestResolveFieldLookupSuffix(t *testing.T) {
	cfg := reportListConfig()

	lookup, err := cfg.resolveField("reporter.email.exact")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if lookup.op != opExact || lookup.column != "reporter.email" {
		t.Errorf("resolved %+v, want exact lookup on reporter.email", lookup)
	}

	lookup, err = cfg.resolveField("message")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if lookup.op != opIContains || lookup.column != "abuse_reports.message" {
		t.Errorf("resolved %+v, want icontains on abuse_reports.message", lookup)
	}
}
