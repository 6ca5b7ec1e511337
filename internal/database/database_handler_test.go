package database

import (
	"fmt"
	"net/netip"
	"testing"

	"shrike/internal/adminsearch"
	"shrike/internal/api/dto"
	"shrike/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	_, err = SetupDB(
		WithExistingDB(db),
		WithAutoMigrate(true),
		WithMigrations(defaultMigrations()...),
		WithSeedDefaults(true),
	)
	if err != nil {
		t.Fatalf("setup test database: %v", err)
	}
}

func testAddr(t *testing.T, raw string) netip.Addr {
	t.Helper()
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		t.Fatalf("parse address %s: %v", raw, err)
	}
	return addr
}

func TestSeedCreatesTaskUser(t *testing.T) {
	setupTestDB(t)

	var taskUser domain.User
	if err := DB.Where("task_user = ?", true).First(&taskUser).Error; err != nil {
		t.Fatalf("task user was not seeded: %v", err)
	}
	if taskUser.Email != domain.TaskUserEmail {
		t.Fatalf("task user email = %s, want %s", taskUser.Email, domain.TaskUserEmail)
	}

	// Seeding again must not create a second one.
	if err := seedDefaults(DB); err != nil {
		t.Fatalf("second seed failed: %v", err)
	}
	var count int64
	DB.Model(&domain.User{}).Where("task_user = ?", true).Count(&count)
	if count != 1 {
		t.Fatalf("task user count = %d, want 1", count)
	}
}

func TestRegisterAndAuthenticateUser(t *testing.T) {
	setupTestDB(t)

	user, err := RegisterUser("Admin@Example.com", "admin", "password123")
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	if user.Email != "admin@example.com" {
		t.Fatalf("email was not lowercased: %s", user.Email)
	}

	if _, err := RegisterUser("admin@example.com", "other", "password123"); err != ErrEmailTaken {
		t.Fatalf("duplicate registration error = %v, want ErrEmailTaken", err)
	}

	if _, err := AuthenticateUser("admin@example.com", "password123"); err != nil {
		t.Fatalf("authenticate with correct password: %v", err)
	}
	if _, err := AuthenticateUser("admin@example.com", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := AuthenticateUser(domain.TaskUserEmail, "anything"); err != ErrInvalidCredentials {
		t.Fatalf("task user login error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAbuseReportPageSearchAndIPs(t *testing.T) {
	setupTestDB(t)

	report := domain.AbuseReport{GUID: "@addon-one", Message: "hidden coin miner"}
	if err := CreateAbuseReport(&report, testAddr(t, "10.1.2.3")); err != nil {
		t.Fatalf("create report: %v", err)
	}
	other := domain.AbuseReport{GUID: "@addon-two", Message: "spam in description"}
	if err := CreateAbuseReport(&other, testAddr(t, "172.16.0.9")); err != nil {
		t.Fatalf("create report: %v", err)
	}

	page, err := GetAbuseReportPage(1, 10, "miner", adminsearch.DateRange{})
	if err != nil {
		t.Fatalf("search reports: %v", err)
	}
	if page.Total != 1 || len(page.Reports) != 1 {
		t.Fatalf("total = %d, rows = %d, want 1/1", page.Total, len(page.Reports))
	}
	if page.Reports[0].GUID != "@addon-one" {
		t.Fatalf("matched guid = %s, want @addon-one", page.Reports[0].GUID)
	}
	if got := page.Reports[0].KnownIPAddresses; len(got) != 1 || got[0] != "10.1.2.3" {
		t.Fatalf("known addresses = %v, want [10.1.2.3]", got)
	}

	page, err = GetAbuseReportPage(1, 10, "10.1.2.0/24", adminsearch.DateRange{})
	if err != nil {
		t.Fatalf("ip search: %v", err)
	}
	if page.Total != 1 || page.Reports[0].GUID != "@addon-one" {
		t.Fatalf("ip search matched %d rows, want the first report", page.Total)
	}
}

func TestModerationDecisionAndAppeal(t *testing.T) {
	setupTestDB(t)

	report := domain.AbuseReport{GUID: "@addon-one", Message: "malware"}
	if err := CreateAbuseReport(&report, testAddr(t, "10.0.0.1")); err != nil {
		t.Fatalf("create report: %v", err)
	}

	job, err := OpenModerationJob("@addon-one", []uint64{report.ID})
	if err != nil {
		t.Fatalf("open job: %v", err)
	}
	if job.JobID == "" {
		t.Fatal("job id was not assigned")
	}

	if _, err := AppealDecision(&job, report.ID, testAddr(t, "10.0.0.1")); err != ErrJobNotDecided {
		t.Fatalf("appeal before decision error = %v, want ErrJobNotDecided", err)
	}

	if err := DecideModerationJob(&job, domain.DecisionAddonDisable, nil, testAddr(t, "192.0.2.1")); err != nil {
		t.Fatalf("decide job: %v", err)
	}
	if err := DecideModerationJob(&job, domain.DecisionUserBan, nil, testAddr(t, "192.0.2.1")); err != ErrJobAlreadyDecided {
		t.Fatalf("second decision error = %v, want ErrJobAlreadyDecided", err)
	}

	appealJob, err := AppealDecision(&job, report.ID, testAddr(t, "10.0.0.1"))
	if err != nil {
		t.Fatalf("appeal decision: %v", err)
	}
	if appealJob.ID == job.ID {
		t.Fatal("appeal reused the decided job")
	}

	var updated domain.AbuseReport
	if err := DB.First(&updated, report.ID).Error; err != nil {
		t.Fatalf("reload report: %v", err)
	}
	if updated.ReporterAppealDate == nil {
		t.Fatal("reporter appeal date was not stamped")
	}
	if updated.AppellantJobID == nil || *updated.AppellantJobID != appealJob.ID {
		t.Fatal("report was not linked to the appeal job")
	}

	if _, err := AppealDecision(&job, report.ID, testAddr(t, "10.0.0.1")); err != ErrAlreadyAppealed {
		t.Fatalf("second appeal error = %v, want ErrAlreadyAppealed", err)
	}
}

func TestCollectionSoftDeleteAndUndelete(t *testing.T) {
	setupTestDB(t)

	owner, err := RegisterUser("owner@example.com", "owner", "password123")
	if err != nil {
		t.Fatalf("register owner: %v", err)
	}

	collection := domain.Collection{Slug: "favorites", Name: "Favorites", AuthorID: &owner.ID}
	if err := CreateCollection(&collection, &owner.ID, testAddr(t, "10.0.0.1")); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	if err := UndeleteCollection(&collection, &owner.ID, testAddr(t, "10.0.0.1")); err != ErrCollectionNotDeleted {
		t.Fatalf("undelete active collection error = %v, want ErrCollectionNotDeleted", err)
	}

	if err := SoftDeleteCollection(&collection, &owner.ID, testAddr(t, "10.0.0.1")); err != nil {
		t.Fatalf("delete collection: %v", err)
	}

	var reloaded domain.Collection
	if err := DB.First(&reloaded, collection.ID).Error; err != nil {
		t.Fatal("soft delete removed the row")
	}
	if !reloaded.Deleted {
		t.Fatal("collection was not marked deleted")
	}

	if err := UndeleteCollection(&collection, &owner.ID, testAddr(t, "10.0.0.1")); err != nil {
		t.Fatalf("undelete collection: %v", err)
	}

	addresses, err := KnownIPAddresses(TargetCollection, collection.ID)
	if err != nil {
		t.Fatalf("known addresses: %v", err)
	}
	if len(addresses) != 1 || addresses[0] != "10.0.0.1" {
		t.Fatalf("known addresses = %v, want [10.0.0.1]", addresses)
	}

	entries, err := GetActivityForTarget(TargetCollection, collection.ID, 10)
	if err != nil {
		t.Fatalf("activity for target: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("activity entries = %d, want create/delete/undelete", len(entries))
	}
}

func TestCanEditCollection(t *testing.T) {
	setupTestDB(t)

	owner, _ := RegisterUser("owner@example.com", "owner", "password123")
	curator, _ := RegisterUser("curator@example.com", "curator", "password123")
	editor, _ := RegisterUser("editor@example.com", "editor", "password123")
	if err := GrantPermissions(&curator, domain.PermAdminCuration); err != nil {
		t.Fatalf("grant curation: %v", err)
	}
	if err := GrantPermissions(&editor, domain.PermCollectionsEdit); err != nil {
		t.Fatalf("grant edit: %v", err)
	}

	owned := domain.Collection{Slug: "owned", Name: "Owned", AuthorID: &owner.ID}
	if err := CreateCollection(&owned, &owner.ID, netip.Addr{}); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	if CanEditCollection(&curator, &owned) {
		t.Fatal("curator may not edit a collection owned by another user")
	}
	if !CanEditCollection(&editor, &owned) {
		t.Fatal("editor permission must allow editing any collection")
	}
	if CanEditCollection(&owner, &owned) {
		t.Fatal("owner without any grant may not edit through the admin")
	}

	if err := TransferCollectionToTaskUser(&owned); err != nil {
		t.Fatalf("transfer to task user: %v", err)
	}
	if !CanEditCollection(&curator, &owned) {
		t.Fatal("curator must edit task-user collections")
	}
}

func TestUpsertBlockSnapshotsUsage(t *testing.T) {
	setupTestDB(t)

	addon := domain.Addon{GUID: "@blocked", Name: "Blocked", Slug: "blocked", AverageDailyUsers: 4200}
	if err := DB.Create(&addon).Error; err != nil {
		t.Fatalf("create addon: %v", err)
	}

	admin, _ := RegisterUser("admin@example.com", "admin", "password123")

	block, err := UpsertBlock(dto.BlockUpsert{GUID: "@blocked", Reason: "malware"}, &admin.ID, testAddr(t, "10.0.0.1"))
	if err != nil {
		t.Fatalf("create block: %v", err)
	}
	if block.MinVersion != "0" || block.MaxVersion != "*" {
		t.Fatalf("version defaults = %s..%s, want 0..*", block.MinVersion, block.MaxVersion)
	}
	if block.AverageDailyUsersSnapshot == nil || *block.AverageDailyUsersSnapshot != 4200 {
		t.Fatal("daily user snapshot was not taken")
	}

	updated, err := UpsertBlock(dto.BlockUpsert{GUID: "@blocked", Reason: "still malware"}, &admin.ID, testAddr(t, "10.0.0.1"))
	if err != nil {
		t.Fatalf("update block: %v", err)
	}
	if updated.ID != block.ID {
		t.Fatal("upsert created a duplicate block")
	}

	var count int64
	DB.Model(&domain.Block{}).Count(&count)
	if count != 1 {
		t.Fatalf("block count = %d, want 1", count)
	}

	page, err := GetBlockPage(1, 10, "malware")
	if err != nil {
		t.Fatalf("search blocks: %v", err)
	}
	if page.Total != 1 || page.Blocks[0].GUID != "@blocked" {
		t.Fatalf("block search found %d rows, want the blocked guid", page.Total)
	}
}

func TestCollectionAddonMembership(t *testing.T) {
	setupTestDB(t)

	owner, _ := RegisterUser("owner@example.com", "owner", "password123")
	collection := domain.Collection{Slug: "picks", Name: "Picks", AuthorID: &owner.ID}
	if err := CreateCollection(&collection, &owner.ID, netip.Addr{}); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	addon := domain.Addon{GUID: "@member", Name: "Member", Slug: "member"}
	if err := DB.Create(&addon).Error; err != nil {
		t.Fatalf("create addon: %v", err)
	}

	if err := SetCollectionAddon(collection.ID, addon.ID, 1); err != nil {
		t.Fatalf("add membership: %v", err)
	}
	if err := SetCollectionAddon(collection.ID, addon.ID, 5); err != nil {
		t.Fatalf("reorder membership: %v", err)
	}

	var memberships []domain.CollectionAddon
	DB.Where("collection_id = ?", collection.ID).Find(&memberships)
	if len(memberships) != 1 {
		t.Fatalf("membership count = %d, want 1", len(memberships))
	}
	if memberships[0].Ordering != 5 {
		t.Fatalf("ordering = %d, want 5", memberships[0].Ordering)
	}

	if err := RemoveCollectionAddon(collection.ID, addon.ID); err != nil {
		t.Fatalf("remove membership: %v", err)
	}
	DB.Where("collection_id = ?", collection.ID).Find(&memberships)
	if len(memberships) != 0 {
		t.Fatal("membership was not removed")
	}
}
