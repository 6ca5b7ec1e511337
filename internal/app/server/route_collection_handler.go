package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"shrike/internal/api/dto"
	"shrike/internal/auth"
	"shrike/internal/database"
	"shrike/internal/domain"
)

func listCollections(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := parsePositiveInt(query.Get("page"), 1)
	pageSize := parsePositiveInt(query.Get("page_size"), 0)

	result, err := database.GetCollectionPage(page, pageSize, query.Get("q"))
	if err != nil {
		log.Error("Failed to list collections", "error", err)
		writeError(w, "Failed to load collections", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func createCollection(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.GetUserFromRequest(r)
	if err != nil {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var upsert dto.CollectionUpsert
	if err := json.NewDecoder(r.Body).Decode(&upsert); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(upsert.Slug) == "" || strings.TrimSpace(upsert.Name) == "" {
		writeError(w, "slug and name are required", http.StatusBadRequest)
		return
	}

	collection := domain.Collection{
		Slug:        strings.TrimSpace(upsert.Slug),
		Name:        upsert.Name,
		Description: upsert.Description,
		AuthorID:    &actor.ID,
	}
	if upsert.DefaultLocale != "" {
		collection.DefaultLocale = upsert.DefaultLocale
	}
	if upsert.Listed != nil {
		collection.Listed = *upsert.Listed
	} else {
		collection.Listed = true
	}

	if err := database.CreateCollection(&collection, &actor.ID, requestAddr(r)); err != nil {
		log.Error("Failed to create collection", "slug", collection.Slug, "error", err)
		writeError(w, "Failed to create collection", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": collection.ID, "slug": collection.Slug})
}

func updateCollection(w http.ResponseWriter, r *http.Request) {
	actor, collection, ok := editableCollectionFromPath(w, r)
	if !ok {
		return
	}

	var upsert dto.CollectionUpsert
	if err := json.NewDecoder(r.Body).Decode(&upsert); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(upsert.Name) != "" {
		collection.Name = upsert.Name
	}
	if upsert.Description != "" {
		collection.Description = upsert.Description
	}
	if upsert.DefaultLocale != "" {
		collection.DefaultLocale = upsert.DefaultLocale
	}
	if upsert.Listed != nil {
		collection.Listed = *upsert.Listed
	}

	if err := database.UpdateCollection(&collection, &actor.ID, requestAddr(r)); err != nil {
		if errors.Is(err, database.ErrCollectionDeleted) {
			writeError(w, "Collection is deleted", http.StatusConflict)
			return
		}
		log.Error("Failed to update collection", "id", collection.ID, "error", err)
		writeError(w, "Failed to update collection", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// deleteCollection soft-deletes. Routed behind Admin:Advanced; the curation
// ownership rule does not apply to deletion.
func deleteCollection(w http.ResponseWriter, r *http.Request) {
	actor, collection, ok := collectionFromPath(w, r)
	if !ok {
		return
	}

	if err := database.SoftDeleteCollection(&collection, &actor.ID, requestAddr(r)); err != nil {
		if errors.Is(err, database.ErrCollectionDeleted) {
			writeError(w, "Collection already deleted", http.StatusConflict)
			return
		}
		log.Error("Failed to delete collection", "id", collection.ID, "error", err)
		writeError(w, "Failed to delete collection", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// restoreCollection undoes a soft delete. On top of the Admin:Advanced route
// gate the actor must also hold Collections:Edit.
func restoreCollection(w http.ResponseWriter, r *http.Request) {
	actor, collection, ok := collectionFromPath(w, r)
	if !ok {
		return
	}

	if !actor.HasPermission(domain.PermCollectionsEdit) {
		writeError(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := database.UndeleteCollection(&collection, &actor.ID, requestAddr(r)); err != nil {
		if errors.Is(err, database.ErrCollectionNotDeleted) {
			writeError(w, "Collection is not deleted", http.StatusConflict)
			return
		}
		log.Error("Failed to restore collection", "id", collection.ID, "error", err)
		writeError(w, "Failed to restore collection", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func setCollectionAddon(w http.ResponseWriter, r *http.Request) {
	_, collection, ok := editableCollectionFromPath(w, r)
	if !ok {
		return
	}

	var upsert dto.CollectionAddonUpsert
	if err := json.NewDecoder(r.Body).Decode(&upsert); err != nil || upsert.AddonID == 0 {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := database.SetCollectionAddon(collection.ID, upsert.AddonID, upsert.Ordering); err != nil {
		log.Error("Failed to set collection add-on", "collection", collection.ID, "addon", upsert.AddonID, "error", err)
		writeError(w, "Failed to update membership", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func removeCollectionAddon(w http.ResponseWriter, r *http.Request) {
	_, collection, ok := editableCollectionFromPath(w, r)
	if !ok {
		return
	}

	addonID, err := strconv.ParseUint(r.PathValue("addonId"), 10, 64)
	if err != nil {
		writeError(w, "Invalid add-on id", http.StatusBadRequest)
		return
	}

	if err := database.RemoveCollectionAddon(collection.ID, addonID); err != nil {
		log.Error("Failed to remove collection add-on", "collection", collection.ID, "addon", addonID, "error", err)
		writeError(w, "Failed to update membership", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// collectionFromPath loads the actor and the addressed collection.
func collectionFromPath(w http.ResponseWriter, r *http.Request) (domain.User, domain.Collection, bool) {
	actor, err := auth.GetUserFromRequest(r)
	if err != nil {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return domain.User{}, domain.Collection{}, false
	}

	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, "Invalid collection id", http.StatusBadRequest)
		return domain.User{}, domain.Collection{}, false
	}

	collection, err := database.GetCollectionFromId(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, "Collection not found", http.StatusNotFound)
		} else {
			writeError(w, "Failed to load collection", http.StatusInternalServerError)
		}
		return domain.User{}, domain.Collection{}, false
	}

	return actor, collection, true
}

// editableCollectionFromPath additionally enforces the curation ownership
// rule: curators may only touch collections they own or that belong to the
// task user.
func editableCollectionFromPath(w http.ResponseWriter, r *http.Request) (domain.User, domain.Collection, bool) {
	actor, collection, ok := collectionFromPath(w, r)
	if !ok {
		return domain.User{}, domain.Collection{}, false
	}

	if !database.CanEditCollection(&actor, &collection) {
		writeError(w, "You cannot edit this collection", http.StatusForbidden)
		return domain.User{}, domain.Collection{}, false
	}

	return actor, collection, true
}
