// search.go — движок запросов: полный просмотр пространства media
// с фильтрами по автору, категории, видимости и тегам.
package service

import (
	"context"
	"log/slog"
	"sort"

	"github.com/bigkaa/goartstore/media-module/internal/domain/mode"
	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/repository"
)

// Filter — параметры поиска. Пустые поля не фильтруют.
type Filter struct {
	Author   string
	Category model.Category
	Tags     []string
	// Requester — username вызывающего; "" — анонимный
	Requester string
	// SortByDownloads — сортировка по убыванию download_count
	SortByDownloads bool
}

// SearchService — сервис поиска медиа.
type SearchService struct {
	media    *repository.MediaRepository
	accounts *repository.AccountRepository
	sm       *mode.StateMachine
	logger   *slog.Logger
}

// NewSearchService создаёт сервис поиска.
func NewSearchService(
	media *repository.MediaRepository,
	accounts *repository.AccountRepository,
	sm *mode.StateMachine,
	logger *slog.Logger,
) *SearchService {
	return &SearchService{
		media:    media,
		accounts: accounts,
		sm:       sm,
		logger:   logger.With(slog.String("component", "search_service")),
	}
}

// Search возвращает идентификаторы записей, прошедших все фильтры,
// в порядке хранилища (или по убыванию скачиваний).
// Скрытые записи видны любому вызывающему с существующим аккаунтом.
func (s *SearchService) Search(ctx context.Context, f Filter) (ids []string, err error) {
	defer func() { observe("search", err) }()

	records, err := s.Records(ctx, f)
	if err != nil {
		return nil, err
	}

	ids = make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// Records — то же, что Search, но возвращает записи целиком.
func (s *SearchService) Records(ctx context.Context, f Filter) ([]*model.MediaRecord, error) {
	if !s.sm.CanPerform(mode.OpList) {
		return nil, modeNotAllowed(mode.OpList, s.sm.CurrentMode())
	}

	seeUnlisted, err := s.canSeeUnlisted(ctx, f.Requester)
	if err != nil {
		return nil, err
	}

	records, err := s.media.Scan(ctx)
	if err != nil {
		s.logger.Error("Ошибка сканирования media", slog.String("error", err.Error()))
		return nil, internal(err)
	}

	tags := lowerTags(f.Tags)
	matched := make([]*model.MediaRecord, 0, len(records))
	for _, r := range records {
		if matches(r, f, tags, seeUnlisted) {
			matched = append(matched, r)
		}
	}

	if f.SortByDownloads {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].DownloadCount > matched[j].DownloadCount
		})
	}
	return matched, nil
}

func (s *SearchService) canSeeUnlisted(ctx context.Context, requester string) (bool, error) {
	if requester == "" {
		return false, nil
	}
	ok, err := s.accounts.Exists(ctx, requester)
	if err != nil {
		s.logger.Error("Ошибка проверки аккаунта", slog.String("error", err.Error()))
		return false, internal(err)
	}
	return ok, nil
}

func matches(r *model.MediaRecord, f Filter, tags []string, seeUnlisted bool) bool {
	if f.Author != "" && f.Author != r.Author {
		return false
	}
	if f.Category != "" && f.Category != r.Category {
		return false
	}
	if r.Unlisted && !seeUnlisted {
		return false
	}
	for _, tag := range tags {
		if !r.HasTag(tag) {
			return false
		}
	}
	return true
}
