package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/farellandr/rifa/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const GridPageSize = 100

type RaffleInput struct {
	Title        string     `json:"title" validate:"required,max=200"`
	Description  string     `json:"description"`
	PriceCLP     int        `json:"price_clp" validate:"gt=0"`
	NumbersTotal int        `json:"numbers_total" validate:"gt=0,lte=100000"`
	StartsAt     *time.Time `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at"`
}

func (in RaffleInput) check() error {
	if err := validate.Struct(in); err != nil {
		return invalid("invalid raffle: %v", err)
	}
	if in.StartsAt != nil && in.EndsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		return invalid("ends_at must be after starts_at")
	}
	return nil
}

// ActiveRaffle returns the lowest-id active raffle.
func (e *Engine) ActiveRaffle(ctx context.Context) (*models.Raffle, error) {
	var raffle models.Raffle
	err := e.DB.WithContext(ctx).Where("is_active = ?", true).Order("id").First(&raffle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "active raffle"}
	}
	if err != nil {
		return nil, err
	}
	return &raffle, nil
}

func (e *Engine) GetRaffle(ctx context.Context, id uint) (*models.Raffle, error) {
	var raffle models.Raffle
	err := e.DB.WithContext(ctx).First(&raffle, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "raffle", Key: strconv.FormatUint(uint64(id), 10)}
	}
	if err != nil {
		return nil, err
	}
	return &raffle, nil
}

func (e *Engine) ListRaffles(ctx context.Context) ([]models.Raffle, error) {
	var raffles []models.Raffle
	err := e.DB.WithContext(ctx).Order("id").Find(&raffles).Error
	return raffles, err
}

func (e *Engine) CreateRaffle(ctx context.Context, in RaffleInput) (*models.Raffle, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	raffle := models.Raffle{
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		PriceCLP:     in.PriceCLP,
		NumbersTotal: in.NumbersTotal,
		StartsAt:     in.StartsAt,
		EndsAt:       in.EndsAt,
	}
	if err := e.DB.WithContext(ctx).Create(&raffle).Error; err != nil {
		return nil, err
	}
	return &raffle, nil
}

func (e *Engine) UpdateRaffle(ctx context.Context, id uint, in RaffleInput) (*models.Raffle, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	raffle, err := e.GetRaffle(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.NumbersTotal < raffle.NumbersTotal {
		var highest int
		if err := e.DB.WithContext(ctx).Model(&models.Ticket{}).
			Where("raffle_id = ?", id).
			Select("COALESCE(MAX(number), 0)").
			Scan(&highest).Error; err != nil {
			return nil, err
		}
		if highest > in.NumbersTotal {
			return nil, invalid("number %d is already sold", highest)
		}
	}
	raffle.Title = strings.TrimSpace(in.Title)
	raffle.Description = in.Description
	raffle.PriceCLP = in.PriceCLP
	raffle.NumbersTotal = in.NumbersTotal
	raffle.StartsAt = in.StartsAt
	raffle.EndsAt = in.EndsAt
	if err := e.DB.WithContext(ctx).Save(raffle).Error; err != nil {
		return nil, err
	}
	return raffle, nil
}

// DeleteRaffle refuses while any payment references the raffle.
func (e *Engine) DeleteRaffle(ctx context.Context, id uint) error {
	return e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Payment{}).Where("raffle_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &StateError{Resource: fmt.Sprintf("raffle %d", id), Status: fmt.Sprintf("referenced by %d payments", count)}
		}
		res := tx.Delete(&models.Raffle{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Resource: "raffle", Key: strconv.FormatUint(uint64(id), 10)}
		}
		return nil
	})
}

// Activate makes id the only active raffle. Every raffle row is locked in id
// order so concurrent activations run one after the other.
func (e *Engine) Activate(ctx context.Context, id uint) (*models.Raffle, error) {
	var raffle models.Raffle
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked []models.Raffle
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Order("id").Find(&locked).Error; err != nil {
			return err
		}
		if err := tx.First(&raffle, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "raffle", Key: strconv.FormatUint(uint64(id), 10)}
			}
			return err
		}
		if err := tx.Model(&models.Raffle{}).
			Where("id <> ? AND is_active = ?", id, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		raffle.IsActive = true
		return tx.Model(&raffle).Update("is_active", true).Error
	})
	if err != nil {
		return nil, err
	}
	return &raffle, nil
}

type GridPage struct {
	Raffle    *models.Raffle `json:"raffle"`
	Page      int            `json:"page"`
	PageCount int            `json:"page_count"`
	PageSize  int            `json:"page_size"`
	Numbers   []GridCell     `json:"numbers"`
	Taken     []int          `json:"taken,omitempty"`
}

type GridCell struct {
	Number    int  `json:"number"`
	Available bool `json:"available"`
}

func PageCount(total int) int {
	if total <= 0 {
		return 1
	}
	return (total + GridPageSize - 1) / GridPageSize
}

// ClampPage parses raw and clamps it into [1, pageCount]. Unparseable input
// selects the first page.
func ClampPage(raw string, pageCount int) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		page = 1
	}
	if page > pageCount {
		page = pageCount
	}
	return page
}

func (e *Engine) Grid(ctx context.Context, raffle *models.Raffle, page int, withTaken bool) (*GridPage, error) {
	taken, err := e.TakenNumbers(ctx, raffle.ID)
	if err != nil {
		return nil, err
	}
	pageCount := PageCount(raffle.NumbersTotal)
	if page < 1 {
		page = 1
	}
	if page > pageCount {
		page = pageCount
	}
	start := (page-1)*GridPageSize + 1
	end := start + GridPageSize - 1
	if end > raffle.NumbersTotal {
		end = raffle.NumbersTotal
	}

	out := &GridPage{
		Raffle:    raffle,
		Page:      page,
		PageCount: pageCount,
		PageSize:  GridPageSize,
		Numbers:   make([]GridCell, 0, end-start+1),
	}
	for n := start; n <= end; n++ {
		out.Numbers = append(out.Numbers, GridCell{Number: n, Available: !taken.Has(n)})
	}
	if withTaken {
		out.Taken = taken.Sorted()
	}
	return out, nil
}

// CheckNumber reports whether n is free on the raffle.
func (e *Engine) CheckNumber(ctx context.Context, raffle *models.Raffle, n int) (bool, error) {
	if !raffle.InRange(n) {
		return false, invalid("number out of range: %d", n)
	}
	taken, err := e.TakenNumbers(ctx, raffle.ID)
	if err != nil {
		return false, err
	}
	return !taken.Has(n), nil
}
