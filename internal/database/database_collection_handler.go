package database

import (
	"errors"
	"fmt"
	"net/netip"

	"shrike/internal/adminsearch"
	"shrike/internal/api/dto"
	"shrike/internal/config"
	"shrike/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	collectionsPerPage    = 40
	maxCollectionsPerPage = 100
)

var (
	ErrCollectionNotDeleted = errors.New("collection is not deleted")
	ErrCollectionDeleted    = errors.New("collection is deleted")
)

// CollectionListConfig describes the collection admin list. No IP search:
// collection activity is reachable through the per-target log views instead.
func CollectionListConfig() adminsearch.ListConfig {
	return adminsearch.ListConfig{
		Table:            "collections",
		NumericThreshold: config.NumericSearchThreshold(),
		SearchFields: []string{
			"=slug",
			"name",
			"description",
			"author.email",
			"author.username",
			"addon.guid.istartswith",
		},
		Relations: map[string]adminsearch.RelationSpec{
			"author": {Join: "LEFT JOIN users AS author ON author.id = collections.author_id"},
			"addon": {
				Join: "LEFT JOIN collection_addons AS membership ON membership.collection_id = collections.id" +
					" LEFT JOIN addons AS addon ON addon.id = membership.addon_id",
				Multi: true,
			},
		},
	}
}

// CanEditCollection applies the curation ownership rule: holders of the
// collections permission edit anything, while curators only edit their own
// collections and those owned by the task user.
func CanEditCollection(user *domain.User, collection *domain.Collection) bool {
	if user == nil {
		return false
	}
	if user.HasPermission(domain.PermCollectionsEdit) {
		return true
	}
	if !user.HasPermission(domain.PermAdminCuration) {
		return false
	}

	if collection.AuthorID == nil {
		return false
	}
	if *collection.AuthorID == user.ID {
		return true
	}
	if collection.Author != nil {
		return collection.Author.TaskUser
	}

	var author domain.User
	if err := DB.First(&author, *collection.AuthorID).Error; err != nil {
		return false
	}
	return author.TaskUser
}

func GetCollectionFromId(id uint64) (domain.Collection, error) {
	var collection domain.Collection
	err := DB.Preload("Author").Preload("Addons.Addon").First(&collection, id).Error
	return collection, err
}

func CreateCollection(collection *domain.Collection, actorID *uint, addr netip.Addr) error {
	if err := DB.Create(collection).Error; err != nil {
		return fmt.Errorf("database: create collection: %w", err)
	}

	return RecordActivity(domain.ActionCollectionCreated, actorID, TargetCollection, collection.ID, addr)
}

func UpdateCollection(collection *domain.Collection, actorID *uint, addr netip.Addr) error {
	if collection.Deleted {
		return ErrCollectionDeleted
	}

	if err := DB.Save(collection).Error; err != nil {
		return fmt.Errorf("database: update collection: %w", err)
	}

	return RecordActivity(domain.ActionCollectionEdited, actorID, TargetCollection, collection.ID, addr)
}

// SoftDeleteCollection marks the collection deleted without dropping the
// row, so the slug stays reserved and the action can be undone.
func SoftDeleteCollection(collection *domain.Collection, actorID *uint, addr netip.Addr) error {
	if collection.Deleted {
		return ErrCollectionDeleted
	}

	if err := DB.Model(collection).Update("deleted", true).Error; err != nil {
		return fmt.Errorf("database: delete collection: %w", err)
	}
	collection.Deleted = true

	return RecordActivity(domain.ActionCollectionDeleted, actorID, TargetCollection, collection.ID, addr)
}

func UndeleteCollection(collection *domain.Collection, actorID *uint, addr netip.Addr) error {
	if !collection.Deleted {
		return ErrCollectionNotDeleted
	}

	if err := DB.Model(collection).Update("deleted", false).Error; err != nil {
		return fmt.Errorf("database: undelete collection: %w", err)
	}
	collection.Deleted = false

	return RecordActivity(domain.ActionCollectionUndeleted, actorID, TargetCollection, collection.ID, addr)
}

// SetCollectionAddon adds an add-on to a collection or updates its ordering
// when it is already a member.
func SetCollectionAddon(collectionID, addonID uint64, ordering int) error {
	entry := domain.CollectionAddon{
		CollectionID: collectionID,
		AddonID:      addonID,
		Ordering:     ordering,
	}
	return DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection_id"}, {Name: "addon_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ordering"}),
	}).Create(&entry).Error
}

func RemoveCollectionAddon(collectionID, addonID uint64) error {
	return DB.
		Where("collection_id = ? AND addon_id = ?", collectionID, addonID).
		Delete(&domain.CollectionAddon{}).Error
}

// GetCollectionPage returns one page of the collection admin list. Deleted
// collections are included: the admin list is where they get restored.
func GetCollectionPage(page, pageSize int, search string) (dto.CollectionPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > maxCollectionsPerPage {
		pageSize = collectionsPerPage
	}

	cfg := CollectionListConfig()
	cls := adminsearch.Classify(search, cfg.NumericThreshold)

	query := DB.Model(&domain.Collection{})
	query, duplicates := adminsearch.Apply(query, cfg, cls)
	if duplicates {
		query = query.Distinct("collections.*")
	}

	var total int64
	if err := DB.Table("(?) AS collection_rows", query).Count(&total).Error; err != nil {
		return dto.CollectionPage{}, fmt.Errorf("database: count collections: %w", err)
	}

	var collections []domain.Collection
	err := query.
		Preload("Author").
		Preload("Addons").
		Order("collections.updated_at DESC, collections.id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&collections).Error
	if err != nil {
		return dto.CollectionPage{}, fmt.Errorf("database: list collections: %w", err)
	}

	return dto.CollectionPage{
		Collections: collectionsToDTO(collections),
		Total:       total,
		Page:        page,
		PageSize:    pageSize,
	}, nil
}

func collectionsToDTO(collections []domain.Collection) []dto.CollectionInfo {
	results := make([]dto.CollectionInfo, 0, len(collections))
	for _, collection := range collections {
		info := dto.CollectionInfo{
			Id:            collection.ID,
			Slug:          collection.Slug,
			Name:          collection.Name,
			Description:   collection.Description,
			DefaultLocale: collection.DefaultLocale,
			Listed:        collection.Listed,
			Deleted:       collection.Deleted,
			AddonCount:    len(collection.Addons),
			CreatedAt:     collection.CreatedAt,
			UpdatedAt:     collection.UpdatedAt,
		}
		if collection.Author != nil {
			info.AuthorEmail = collection.Author.Email
		}
		results = append(results, info)
	}

	return results
}

// TransferCollectionToTaskUser reassigns ownership to the platform account,
// the step that puts a collection under shared curation.
func TransferCollectionToTaskUser(collection *domain.Collection) error {
	var taskUser domain.User
	if err := DB.Where("task_user = ?", true).First(&taskUser).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("database: no task user configured")
		}
		return err
	}

	if err := DB.Model(collection).Update("author_id", taskUser.ID).Error; err != nil {
		return fmt.Errorf("database: transfer collection: %w", err)
	}
	collection.AuthorID = &taskUser.ID
	collection.Author = &taskUser

	return nil
}
