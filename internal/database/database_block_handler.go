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
)

const (
	blocksPerPage    = 40
	maxBlocksPerPage = 100
)

// BlockListConfig describes the blocklist admin list. Guid matches exactly,
// everything else is substring search.
func BlockListConfig() adminsearch.ListConfig {
	return adminsearch.ListConfig{
		Table:            "blocks",
		NumericThreshold: config.NumericSearchThreshold(),
		SearchFields: []string{
			"=guid",
			"reason",
			"url",
			"updated_by.username",
			"updated_by.email",
		},
		Relations: map[string]adminsearch.RelationSpec{
			"updated_by": {Join: "LEFT JOIN users AS updated_by ON updated_by.id = blocks.updated_by_id"},
		},
		IPSearch: &adminsearch.IPSearchConfig{
			TargetType: TargetBlock,
			Actions:    []int{domain.ActionBlockAdded, domain.ActionBlockEdited},
		},
	}
}

// UpsertBlock creates or updates the blocklist entry for a guid and snapshots
// the blocked add-on's usage count when the add-on is known.
func UpsertBlock(upsert dto.BlockUpsert, actorID *uint, addr netip.Addr) (domain.Block, error) {
	minVersion := upsert.MinVersion
	if minVersion == "" {
		minVersion = "0"
	}
	maxVersion := upsert.MaxVersion
	if maxVersion == "" {
		maxVersion = "*"
	}

	var block domain.Block
	err := DB.Where("guid = ?", upsert.GUID).First(&block).Error
	created := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !created {
		return domain.Block{}, fmt.Errorf("database: load block: %w", err)
	}

	block.GUID = upsert.GUID
	block.URL = upsert.URL
	block.Reason = upsert.Reason
	block.MinVersion = minVersion
	block.MaxVersion = maxVersion
	block.UpdatedByID = actorID

	var addon domain.Addon
	if err := DB.Where("guid = ?", upsert.GUID).First(&addon).Error; err == nil {
		block.AverageDailyUsersSnapshot = &addon.AverageDailyUsers
	}

	if err := DB.Save(&block).Error; err != nil {
		return domain.Block{}, fmt.Errorf("database: save block: %w", err)
	}

	action := domain.ActionBlockEdited
	if created {
		action = domain.ActionBlockAdded
	}
	if err := RecordActivity(action, actorID, TargetBlock, block.ID, addr); err != nil {
		return domain.Block{}, err
	}

	return block, nil
}

func DeleteBlock(id uint64, actorID *uint, addr netip.Addr) error {
	var block domain.Block
	if err := DB.First(&block, id).Error; err != nil {
		return err
	}

	if err := DB.Delete(&block).Error; err != nil {
		return fmt.Errorf("database: delete block: %w", err)
	}

	return RecordActivity(domain.ActionBlockDeleted, actorID, TargetBlock, block.ID, addr)
}

func GetBlockFromGUID(guid string) (domain.Block, error) {
	var block domain.Block
	err := DB.Preload("UpdatedBy").Where("guid = ?", guid).First(&block).Error
	return block, err
}

// GetBlockPage returns one page of the blocklist admin list.
func GetBlockPage(page, pageSize int, search string) (dto.BlockPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > maxBlocksPerPage {
		pageSize = blocksPerPage
	}

	cfg := BlockListConfig()
	cls := adminsearch.Classify(search, cfg.NumericThreshold)

	query := DB.Model(&domain.Block{})
	query, _ = adminsearch.Apply(query, cfg, cls)

	var total int64
	if err := DB.Table("(?) AS block_rows", query).Count(&total).Error; err != nil {
		return dto.BlockPage{}, fmt.Errorf("database: count blocks: %w", err)
	}

	var blocks []domain.Block
	err := query.
		Preload("UpdatedBy").
		Order("blocks.updated_at DESC, blocks.id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&blocks).Error
	if err != nil {
		return dto.BlockPage{}, fmt.Errorf("database: list blocks: %w", err)
	}

	infos := make([]dto.BlockInfo, 0, len(blocks))
	for _, block := range blocks {
		info := dto.BlockInfo{
			Id:         block.ID,
			GUID:       block.GUID,
			URL:        block.URL,
			Reason:     block.Reason,
			MinVersion: block.MinVersion,
			MaxVersion: block.MaxVersion,
			DailyUsers: block.AverageDailyUsersSnapshot,
			CreatedAt:  block.CreatedAt,
			UpdatedAt:  block.UpdatedAt,
		}
		if block.UpdatedBy != nil {
			info.UpdatedByName = block.UpdatedBy.Username
		}
		infos = append(infos, info)
	}

	return dto.BlockPage{
		Blocks:   infos,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}
