// stats.go — агрегированная статистика по медиа и аккаунтам.
package service

import (
	"context"
	"log/slog"

	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/repository"
)

// MediaStats — статистика пространства media.
type MediaStats struct {
	Total          int                    `json:"total"`
	Unlisted       int                    `json:"unlisted"`
	Compressed     int                    `json:"compressed"`
	StoredBytes    int64                  `json:"stored_bytes"`
	TotalDownloads uint64                 `json:"total_downloads"`
	ByCategory     map[model.Category]int `json:"by_category"`
}

// UserStats — статистика пространства user.
type UserStats struct {
	Total          int `json:"total"`
	WithUploads    int `json:"with_uploads"`
	IndexedUploads int `json:"indexed_uploads"`
	Invites        int `json:"invites"`
}

// StatsService — сервис статистики.
type StatsService struct {
	media    *repository.MediaRepository
	accounts *repository.AccountRepository
	invites  *repository.InviteRepository
	logger   *slog.Logger
}

// NewStatsService создаёт сервис статистики.
func NewStatsService(
	media *repository.MediaRepository,
	accounts *repository.AccountRepository,
	invites *repository.InviteRepository,
	logger *slog.Logger,
) *StatsService {
	return &StatsService{
		media:    media,
		accounts: accounts,
		invites:  invites,
		logger:   logger.With(slog.String("component", "stats_service")),
	}
}

// Media считает записи по категориям, объём и скачивания.
func (s *StatsService) Media(ctx context.Context) (*MediaStats, error) {
	records, err := s.media.Scan(ctx)
	if err != nil {
		s.logger.Error("Ошибка сканирования media", slog.String("error", err.Error()))
		return nil, internal(err)
	}

	stats := &MediaStats{ByCategory: make(map[model.Category]int, len(model.Categories))}
	for _, c := range model.Categories {
		stats.ByCategory[c] = 0
	}
	for _, r := range records {
		stats.Total++
		stats.ByCategory[r.Category]++
		stats.StoredBytes += r.SizeBytes
		stats.TotalDownloads += r.DownloadCount
		if r.Unlisted {
			stats.Unlisted++
		}
		if r.Compressed {
			stats.Compressed++
		}
	}
	return stats, nil
}

// Users считает аккаунты, проиндексированные загрузки и приглашения.
func (s *StatsService) Users(ctx context.Context) (*UserStats, error) {
	accounts, err := s.accounts.Scan(ctx)
	if err != nil {
		s.logger.Error("Ошибка сканирования user", slog.String("error", err.Error()))
		return nil, internal(err)
	}

	stats := &UserStats{Total: len(accounts)}
	for _, a := range accounts {
		if len(a.Uploads) > 0 {
			stats.WithUploads++
		}
		stats.IndexedUploads += len(a.Uploads)
	}

	if s.invites != nil {
		n, err := s.invites.Count(ctx)
		if err != nil {
			s.logger.Error("Ошибка сканирования invite", slog.String("error", err.Error()))
			return nil, internal(err)
		}
		stats.Invites = n
	}
	return stats, nil
}
