package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"shrike/internal/auth"
	"shrike/internal/database"
	"shrike/internal/domain"
)

func setupServerTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if _, err := database.SetupDB(database.WithExistingDB(db)); err != nil {
		t.Fatalf("setup test database: %v", err)
	}
}

func testToken(t *testing.T, email string, perms ...string) string {
	t.Helper()

	user, err := database.RegisterUser(email, "tester", "secret-password")
	if err != nil {
		t.Fatalf("register test user: %v", err)
	}
	if len(perms) > 0 {
		if err := database.GrantPermissions(&user, perms...); err != nil {
			t.Fatalf("grant permissions: %v", err)
		}
	}

	token, err := auth.GenerateJWT(user.ID, user.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func testRouteAddr(t *testing.T, raw string) netip.Addr {
	t.Helper()
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		t.Fatalf("parse address %s: %v", raw, err)
	}
	return addr
}

func TestRequestAddrPrefersForwardedHeader(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.RemoteAddr = "203.0.113.9:4567"
	request.Header.Set("X-Forwarded-For", "198.51.100.23, 10.0.0.1")

	if got := requestAddr(request).String(); got != "198.51.100.23" {
		t.Fatalf("requestAddr = %s, want 198.51.100.23", got)
	}
}

func TestRequestAddrFallsBackToRemoteAddr(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.RemoteAddr = "203.0.113.9:4567"

	if got := requestAddr(request).String(); got != "203.0.113.9" {
		t.Fatalf("requestAddr = %s, want 203.0.113.9", got)
	}

	request.RemoteAddr = "not-an-address"
	if addr := requestAddr(request); addr.IsValid() {
		t.Fatalf("requestAddr returned %s for garbage input, want invalid", addr)
	}
}

func TestParsePositiveInt(t *testing.T) {
	cases := []struct {
		raw      string
		fallback int
		want     int
	}{
		{"", 1, 1},
		{"5", 1, 5},
		{"0", 1, 1},
		{"-3", 2, 2},
		{"abc", 4, 4},
	}

	for _, tc := range cases {
		if got := parsePositiveInt(tc.raw, tc.fallback); got != tc.want {
			t.Fatalf("parsePositiveInt(%q, %d) = %d, want %d", tc.raw, tc.fallback, got, tc.want)
		}
	}
}

func TestHasNewDenylistSources(t *testing.T) {
	old := []string{"https://a.example/list.txt", "https://b.example/list.txt"}

	if hasNewDenylistSources(old, []string{"https://a.example/list.txt"}) {
		t.Fatal("removing a source must not count as new")
	}
	if hasNewDenylistSources(old, []string{" https://b.example/list.txt ", ""}) {
		t.Fatal("whitespace and empty entries must not count as new")
	}
	if !hasNewDenylistSources(old, []string{"https://c.example/list.txt"}) {
		t.Fatal("unknown source was not detected")
	}
}

func TestRegisterAndLoginFlow(t *testing.T) {
	setupServerTestDB(t)

	body := `{"email":"new-user@example.com","password":"long-enough-pass"}`
	recorder := httptest.NewRecorder()
	registerUser(recorder, httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(body)))

	if recorder.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want %d", recorder.Code, http.StatusCreated)
	}

	var created map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if created["token"] == "" {
		t.Fatal("register response is missing the token")
	}

	// Same email again must conflict.
	recorder = httptest.NewRecorder()
	registerUser(recorder, httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(body)))
	if recorder.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want %d", recorder.Code, http.StatusConflict)
	}

	recorder = httptest.NewRecorder()
	loginUser(recorder, httptest.NewRequest(http.MethodPost, "/login",
		bytes.NewBufferString(`{"email":"new-user@example.com","password":"wrong-password"}`)))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want %d", recorder.Code, http.StatusUnauthorized)
	}

	recorder = httptest.NewRecorder()
	loginUser(recorder, httptest.NewRequest(http.MethodPost, "/login",
		bytes.NewBufferString(`{"email":"new-user@example.com","password":"long-enough-pass"}`)))
	if recorder.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d", recorder.Code, http.StatusOK)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	setupServerTestDB(t)

	cases := map[string]string{
		"bad email":      `{"email":"not-an-email","password":"long-enough-pass"}`,
		"short password": `{"email":"short@example.com","password":"tiny"}`,
	}

	for name, body := range cases {
		recorder := httptest.NewRecorder()
		registerUser(recorder, httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(body)))
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want %d", name, recorder.Code, http.StatusBadRequest)
		}
	}
}

func TestModerationRoutePermissionGate(t *testing.T) {
	setupServerTestDB(t)

	handler := requireAbuseView(http.HandlerFunc(listModerationJobs))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/moderationJobs", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want %d", recorder.Code, http.StatusUnauthorized)
	}

	plainToken := testToken(t, "plain@example.com")
	recorder = httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/moderationJobs", nil)
	request.Header.Set("Authorization", "Bearer "+plainToken)
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unprivileged status = %d, want %d", recorder.Code, http.StatusForbidden)
	}

	viewerToken := testToken(t, "viewer@example.com", domain.PermAbuseView)
	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodGet, "/moderationJobs", nil)
	request.Header.Set("Authorization", "Bearer "+viewerToken)
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("viewer status = %d, want %d", recorder.Code, http.StatusOK)
	}
}

func TestDecideModerationJobRoute(t *testing.T) {
	setupServerTestDB(t)

	report := domain.AbuseReport{GUID: "decide-route@example.com", Message: "spam waves"}
	if err := database.CreateAbuseReport(&report, testRouteAddr(t, "198.51.100.7")); err != nil {
		t.Fatalf("create report: %v", err)
	}
	job, err := database.OpenModerationJob(report.GUID, []uint64{report.ID})
	if err != nil {
		t.Fatalf("open job: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /moderationJobs/{id}/decision", requireAdvancedAdmin(http.HandlerFunc(decideModerationJob)))

	token := testToken(t, "decider@example.com", domain.PermAdminAdvanced)
	target := fmt.Sprintf("/moderationJobs/%d/decision", job.ID)

	decide := func() *httptest.ResponseRecorder {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodPost, target,
			bytes.NewBufferString(`{"action":2}`))
		request.Header.Set("Authorization", "Bearer "+token)
		mux.ServeHTTP(recorder, request)
		return recorder
	}

	recorder := decide()
	if recorder.Code != http.StatusOK {
		t.Fatalf("decision status = %d, want %d: %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}

	var response map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode decision response: %v", err)
	}
	if response["decision_label"] != domain.DecisionLabel(domain.DecisionAddonDisable) {
		t.Fatalf("decision_label = %v, want %s", response["decision_label"], domain.DecisionLabel(domain.DecisionAddonDisable))
	}

	// A decided job must not accept a second decision.
	if recorder = decide(); recorder.Code != http.StatusConflict {
		t.Fatalf("second decision status = %d, want %d", recorder.Code, http.StatusConflict)
	}
}

func collectionMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("DELETE /collections/{id}", requireAdvancedAdmin(http.HandlerFunc(deleteCollection)))
	mux.Handle("POST /collections/{id}/restore", requireAdvancedAdmin(http.HandlerFunc(restoreCollection)))
	return mux
}

func testCollection(t *testing.T, authorID *uint) domain.Collection {
	t.Helper()

	collection := domain.Collection{
		Slug:          fmt.Sprintf("col-%d", time.Now().UnixNano()),
		Name:          "Fixture collection",
		DefaultLocale: "en-US",
		Listed:        true,
		AuthorID:      authorID,
	}
	if err := database.CreateCollection(&collection, authorID, testRouteAddr(t, "192.0.2.10")); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	return collection
}

func countActivities(t *testing.T, action int) int64 {
	t.Helper()

	var count int64
	if err := database.DB.Model(&domain.ActivityLog{}).Where("action = ?", action).Count(&count).Error; err != nil {
		t.Fatalf("count activities: %v", err)
	}
	return count
}

func TestDeleteCollectionRequiresAdvancedAdmin(t *testing.T) {
	setupServerTestDB(t)

	mux := collectionMux()

	curator, err := database.RegisterUser("curator@example.com", "curator", "secret-password")
	if err != nil {
		t.Fatalf("register curator: %v", err)
	}
	if err := database.GrantPermissions(&curator, domain.PermAdminCuration); err != nil {
		t.Fatalf("grant permissions: %v", err)
	}
	curatorToken, err := auth.GenerateJWT(curator.ID, curator.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	// Owned by the curator, so the edit ownership rule would allow it.
	owned := testCollection(t, &curator.ID)
	target := fmt.Sprintf("/collections/%d", owned.ID)

	attempt := func(token string) *httptest.ResponseRecorder {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodDelete, target, nil)
		request.Header.Set("Authorization", "Bearer "+token)
		mux.ServeHTTP(recorder, request)
		return recorder
	}

	editorToken := testToken(t, "editor@example.com", domain.PermCollectionsEdit)
	if recorder := attempt(editorToken); recorder.Code != http.StatusForbidden {
		t.Fatalf("Collections:Edit delete status = %d, want %d", recorder.Code, http.StatusForbidden)
	}

	// Ownership does not buy deletion either.
	if recorder := attempt(curatorToken); recorder.Code != http.StatusForbidden {
		t.Fatalf("Admin:Curation delete status = %d, want %d", recorder.Code, http.StatusForbidden)
	}

	reloaded, err := database.GetCollectionFromId(owned.ID)
	if err != nil {
		t.Fatalf("reload collection: %v", err)
	}
	if reloaded.Deleted {
		t.Fatal("collection was deleted without Admin:Advanced")
	}

	adminToken := testToken(t, "advanced@example.com", domain.PermAdminAdvanced)
	if recorder := attempt(adminToken); recorder.Code != http.StatusNoContent {
		t.Fatalf("Admin:Advanced delete status = %d, want %d", recorder.Code, http.StatusNoContent)
	}

	reloaded, err = database.GetCollectionFromId(owned.ID)
	if err != nil {
		t.Fatalf("reload deleted collection: %v", err)
	}
	if !reloaded.Deleted {
		t.Fatal("collection was not soft-deleted")
	}
	if reloaded.Slug != owned.Slug {
		t.Fatalf("slug changed on delete: %s != %s", reloaded.Slug, owned.Slug)
	}
	if got := countActivities(t, domain.ActionCollectionDeleted); got != 1 {
		t.Fatalf("deletion activity count = %d, want 1", got)
	}
	if got := countActivities(t, domain.ActionCollectionUndeleted); got != 0 {
		t.Fatalf("undeletion activity count = %d, want 0", got)
	}
}

func TestRestoreCollectionRequiresAdvancedAdminAndEdit(t *testing.T) {
	setupServerTestDB(t)

	mux := collectionMux()

	owner, err := database.RegisterUser("owner@example.com", "owner", "secret-password")
	if err != nil {
		t.Fatalf("register owner: %v", err)
	}
	collection := testCollection(t, &owner.ID)
	if err := database.SoftDeleteCollection(&collection, &owner.ID, testRouteAddr(t, "192.0.2.11")); err != nil {
		t.Fatalf("soft delete collection: %v", err)
	}
	target := fmt.Sprintf("/collections/%d/restore", collection.ID)

	attempt := func(token string) *httptest.ResponseRecorder {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodPost, target, nil)
		request.Header.Set("Authorization", "Bearer "+token)
		mux.ServeHTTP(recorder, request)
		return recorder
	}

	// Admin:Advanced alone is not enough to restore.
	bareAdminToken := testToken(t, "bare-admin@example.com", domain.PermAdminAdvanced)
	if recorder := attempt(bareAdminToken); recorder.Code != http.StatusForbidden {
		t.Fatalf("Admin:Advanced-only restore status = %d, want %d", recorder.Code, http.StatusForbidden)
	}

	fullToken := testToken(t, "full-admin@example.com", domain.PermAdminAdvanced, domain.PermCollectionsEdit)
	if recorder := attempt(fullToken); recorder.Code != http.StatusNoContent {
		t.Fatalf("restore status = %d, want %d", recorder.Code, http.StatusNoContent)
	}

	reloaded, err := database.GetCollectionFromId(collection.ID)
	if err != nil {
		t.Fatalf("reload collection: %v", err)
	}
	if reloaded.Deleted {
		t.Fatal("collection is still deleted after restore")
	}
	if got := countActivities(t, domain.ActionCollectionUndeleted); got != 1 {
		t.Fatalf("undeletion activity count = %d, want 1", got)
	}
}

func TestModerationJobRouteRejectsBadId(t *testing.T) {
	setupServerTestDB(t)

	mux := http.NewServeMux()
	mux.Handle("GET /moderationJobs/{id}", http.HandlerFunc(getModerationJob))

	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/moderationJobs/not-a-number", nil))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want %d", recorder.Code, http.StatusBadRequest)
	}

	recorder = httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/moderationJobs/999999", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d, want %d", recorder.Code, http.StatusNotFound)
	}
}
