package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"reading-progress-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChallengeService struct {
	DB       *gorm.DB
	Leveling *LevelingService
}

func NewChallengeService(db *gorm.DB, leveling *LevelingService) *ChallengeService {
	return &ChallengeService{DB: db, Leveling: leveling}
}

// ChallengeInput is the caller-supplied shape for create/update.
type ChallengeInput struct {
	Name        string                      `json:"name"`
	Description string                      `json:"description"`
	TargetCount int                         `json:"target_count"`
	StartDate   time.Time                   `json:"start_date"`
	EndDate     time.Time                   `json:"end_date"`
	RewardXP    int64                       `json:"reward_xp"`
	SharedWith  []string                    `json:"shared_with"`
	Conditions  *models.ChallengeConditions `json:"conditions,omitempty"`
}

// ChallengeOutcome reports what happened to one challenge for one applied book.
type ChallengeOutcome struct {
	ChallengeID     string `json:"challenge_id"`
	ChallengeName   string `json:"challenge_name"`
	Counted         bool   `json:"counted"`
	ConditionNotMet bool   `json:"condition_not_met"`
	AlreadyCounted  bool   `json:"already_counted"`
	NewCount        int    `json:"new_count,omitempty"`
	NewlyCompleted  bool   `json:"newly_completed"`
	XPAwarded       int64  `json:"xp_awarded,omitempty"`
	Error           string `json:"error,omitempty"`
}

// ChallengeApplication aggregates the per-challenge outcomes for one book
// plus any reward-XP grants triggered, so the caller can surface level-ups.
type ChallengeApplication struct {
	Outcomes []ChallengeOutcome `json:"outcomes"`
	XPGrants []XPGrantResult    `json:"xp_grants,omitempty"`
}

func (s *ChallengeService) validateInput(in *ChallengeInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name", "required")
	}
	if in.TargetCount <= 0 {
		return invalid("target_count", "must be > 0")
	}
	if in.EndDate.Before(in.StartDate) {
		return invalid("end_date", "must be on or after start_date")
	}
	if in.RewardXP < 0 {
		return invalid("reward_xp", "must be >= 0")
	}
	if c := in.Conditions; c != nil {
		if c.MinRating != nil && (*c.MinRating < 0 || *c.MinRating > 5) {
			return invalid("conditions.min_rating", "must be between 0 and 5")
		}
		if c.YearMin != nil && c.YearMax != nil && *c.YearMin > *c.YearMax {
			return invalid("conditions.year_min", "must not exceed year_max")
		}
	}
	return nil
}

// CreateChallenge validates and stores a new challenge owned by ownerID.
// The join code is a slug of the name plus a short random suffix.
func (s *ChallengeService) CreateChallenge(ownerID string, in *ChallengeInput) (*models.Challenge, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	conditions := models.ChallengeConditions{}
	if in.Conditions != nil {
		conditions = *in.Conditions
	}

	ch := models.Challenge{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		JoinCode:    makeJoinCode(in.Name),
		TargetCount: in.TargetCount,
		StartDate:   models.DateOnly(in.StartDate),
		EndDate:     models.DateOnly(in.EndDate),
		RewardXP:    in.RewardXP,
		SharedWith:  datatypes.NewJSONSlice(dedupeUserIDs(in.SharedWith, ownerID)),
		Conditions:  datatypes.NewJSONType(conditions),
	}
	if err := s.DB.Create(&ch).Error; err != nil {
		return nil, err
	}

	log.Printf("🎯 Challenge created: %q (%s) by %s, target=%d, window=%s..%s",
		ch.Name, ch.JoinCode, ownerID, ch.TargetCount,
		ch.StartDate.Format("2006-01-02"), ch.EndDate.Format("2006-01-02"))

	return &ch, nil
}

// makeJoinCode derives a shareable code from the challenge name.
func makeJoinCode(name string) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return slug.Make(name) + "-" + suffix
}

// dedupeUserIDs drops duplicates and the owner (the owner is implicitly a participant).
func dedupeUserIDs(ids []string, ownerID string) []string {
	seen := map[string]bool{ownerID: true}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// GetChallenge returns one challenge with per-participant progress. Only
// participants may read it.
func (s *ChallengeService) GetChallenge(challengeID, userID string) (*models.Challenge, error) {
	var ch models.Challenge
	if err := s.DB.Where("id = ?", challengeID).First(&ch).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
		}
		return nil, err
	}
	if !ch.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
	}
	if err := s.attachProgress(&ch); err != nil {
		return nil, err
	}
	ch.Active = ch.ActiveOn(time.Now())
	return &ch, nil
}

func (s *ChallengeService) attachProgress(ch *models.Challenge) error {
	var progress []models.ChallengeProgress
	if err := s.DB.Where("challenge_id = ?", ch.ID).
		Order("completed_book_count DESC").
		Find(&progress).Error; err != nil {
		return err
	}
	ch.Progress = progress
	return nil
}

// ListChallengesForUser returns every challenge the user owns or was shared
// into, newest first, each with per-participant progress attached.
func (s *ChallengeService) ListChallengesForUser(userID string, activeOnly bool) ([]models.Challenge, error) {
	var all []models.Challenge
	// Membership lives in a JSON array, so filter in Go after a cheap
	// owner-or-shared prefilter. CAST keeps the LIKE portable across
	// postgres jsonb and the sqlite test dialect.
	err := s.DB.
		Where("owner_id = ? OR CAST(shared_with AS TEXT) LIKE ?", userID, "%"+userID+"%").
		Order("created_at DESC").
		Find(&all).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]models.Challenge, 0, len(all))
	for i := range all {
		ch := all[i]
		if !ch.HasParticipant(userID) {
			continue
		}
		ch.Active = ch.ActiveOn(now)
		if activeOnly && !ch.Active {
			continue
		}
		if err := s.attachProgress(&ch); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// UpdateChallenge applies owner-only partial updates. Counted progress is
// never rewritten here.
func (s *ChallengeService) UpdateChallenge(ownerID, challengeID string, in *ChallengeInput) (*models.Challenge, error) {
	var ch models.Challenge
	if err := s.DB.Where("id = ?", challengeID).First(&ch).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
		}
		return nil, err
	}
	if ch.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
	}
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	ch.Name = strings.TrimSpace(in.Name)
	ch.Description = in.Description
	ch.TargetCount = in.TargetCount
	ch.StartDate = models.DateOnly(in.StartDate)
	ch.EndDate = models.DateOnly(in.EndDate)
	ch.RewardXP = in.RewardXP
	ch.SharedWith = datatypes.NewJSONSlice(dedupeUserIDs(in.SharedWith, ownerID))
	if in.Conditions != nil {
		ch.Conditions = datatypes.NewJSONType(*in.Conditions)
	}

	if err := s.DB.Save(&ch).Error; err != nil {
		return nil, err
	}
	return &ch, nil
}

// DeleteChallenge soft deletes an owned challenge.
func (s *ChallengeService) DeleteChallenge(ownerID, challengeID string) error {
	res := s.DB.Where("id = ? AND owner_id = ?", challengeID, ownerID).
		Delete(&models.Challenge{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
	}
	return nil
}

// ShareChallenge adds participants to an owned challenge. The member list is
// merged under a row lock so concurrent shares and joins never drop each other.
func (s *ChallengeService) ShareChallenge(ownerID, challengeID string, userIDs []string) (*models.Challenge, error) {
	var ch models.Challenge
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).
			Where("id = ? AND owner_id = ?", challengeID, ownerID).
			First(&ch).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
			}
			return err
		}

		merged := append([]string(ch.SharedWith), userIDs...)
		ch.SharedWith = datatypes.NewJSONSlice(dedupeUserIDs(merged, ownerID))
		return tx.Save(&ch).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🤝 Challenge %q shared with %d participant(s)", ch.Name, len(ch.SharedWith))
	return &ch, nil
}

// JoinByCode adds the caller to the challenge behind a join code.
func (s *ChallengeService) JoinByCode(userID, code string) (*models.Challenge, error) {
	var ch models.Challenge
	joined := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).
			Where("join_code = ?", code).First(&ch).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("%w: join code %s", ErrNotFound, code)
			}
			return err
		}
		if ch.HasParticipant(userID) {
			return nil
		}
		ch.SharedWith = datatypes.NewJSONSlice(append([]string(ch.SharedWith), userID))
		joined = true
		return tx.Save(&ch).Error
	})
	if err != nil {
		return nil, err
	}
	if joined {
		log.Printf("🤝 %s joined challenge %q via code", userID, ch.Name)
	}
	return &ch, nil
}

// ApplyBookToChallenges counts a finished book toward every active challenge
// the user participates in. Books without a finish date never count. Each
// challenge is applied independently: condition misses and duplicates are
// outcomes, not errors. The first crossing of the target pays RewardXP to
// that participant exactly once.
func (s *ChallengeService) ApplyBookToChallenges(userID string, book *models.Book) (*ChallengeApplication, error) {
	if book == nil || book.ID == "" {
		return nil, invalid("book", "required")
	}

	app := &ChallengeApplication{}
	if !book.Finished() {
		// Silently skipped per contract — unfinished books count toward nothing.
		return app, nil
	}

	candidates, err := s.ListChallengesForUser(userID, true)
	if err != nil {
		return nil, err
	}

	// Each challenge is applied independently: a failure in one is recorded
	// on its outcome and never blocks the rest.
	var errs []error
	for i := range candidates {
		ch := &candidates[i]
		outcome, grant, err := s.applyBookToChallenge(userID, book, ch)
		if err != nil {
			outcome.Error = err.Error()
			errs = append(errs, fmt.Errorf("challenge %s: %w", ch.ID, err))
		}
		app.Outcomes = append(app.Outcomes, *outcome)
		if grant != nil {
			app.XPGrants = append(app.XPGrants, *grant)
		}
	}
	return app, errors.Join(errs...)
}

func (s *ChallengeService) applyBookToChallenge(userID string, book *models.Book, ch *models.Challenge) (*ChallengeOutcome, *XPGrantResult, error) {
	outcome := &ChallengeOutcome{ChallengeID: ch.ID, ChallengeName: ch.Name}

	if !bookMeetsConditions(book, ch.Conditions.Data()) {
		outcome.ConditionNotMet = true
		return outcome, nil, nil
	}

	completed := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Atomic dedup: the unique (challenge_id, book_id) link decides
		// whether this book was already counted, even under concurrent
		// retries. Link and count commit together so a failed increment
		// leaves no orphaned link behind.
		link := models.ChallengeBook{
			ID:          uuid.NewString(),
			ChallengeID: ch.ID,
			BookID:      book.ID,
			UserID:      userID,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "challenge_id"}, {Name: "book_id"}},
			DoNothing: true,
		}).Create(&link)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			outcome.AlreadyCounted = true
			// A retried event may have committed the count but lost the
			// payout. Surface the completion state so the grant below can
			// catch up.
			var prog models.ChallengeProgress
			err := tx.Where("challenge_id = ? AND user_id = ?", ch.ID, userID).
				First(&prog).Error
			if err == nil {
				completed = prog.Completed
			} else if err != gorm.ErrRecordNotFound {
				return err
			}
			return nil
		}

		prog, err := s.ensureProgressLocked(tx, ch.ID, userID)
		if err != nil {
			return err
		}

		prog.CompletedBookCount++
		newlyCompleted := !prog.Completed && prog.CompletedBookCount >= ch.TargetCount
		if newlyCompleted {
			now := time.Now()
			prog.Completed = true
			prog.CompletedAt = &now
		}
		if err := tx.Save(prog).Error; err != nil {
			return err
		}

		completed = prog.Completed
		outcome.Counted = true
		outcome.NewCount = prog.CompletedBookCount
		outcome.NewlyCompleted = newlyCompleted
		return nil
	})
	if err != nil {
		return outcome, nil, err
	}

	if outcome.Counted {
		log.Printf("🎯 Challenge progress: %q → %s now at %d/%d",
			ch.Name, userID, outcome.NewCount, ch.TargetCount)
	}

	// Reward payout is keyed on (challenge, participant) in the XP ledger and
	// attempted whenever the participant stands completed. A retry that lost
	// the original grant pays it here; a repeat attempt is a no-op.
	var grant *XPGrantResult
	if completed && ch.RewardXP > 0 {
		g, err := s.Leveling.GrantXPOnce(userID, ch.RewardXP,
			fmt.Sprintf("challenge_%s_completed", ch.ID),
			fmt.Sprintf("challenge_completed:%s:%s", ch.ID, userID))
		if err != nil {
			return outcome, nil, err
		}
		grant = g
		if outcome.NewlyCompleted {
			outcome.XPAwarded = ch.RewardXP
			log.Printf("🏁 Challenge %q completed by %s (+%d XP)", ch.Name, userID, ch.RewardXP)
		}
	} else if outcome.NewlyCompleted {
		log.Printf("🏁 Challenge %q completed by %s", ch.Name, userID)
	}

	return outcome, grant, nil
}

// ensureProgressLocked returns the participant's progress row under a FOR
// UPDATE lock, creating it on first contribution.
func (s *ChallengeService) ensureProgressLocked(tx *gorm.DB, challengeID, userID string) (*models.ChallengeProgress, error) {
	var prog models.ChallengeProgress
	err := lockForUpdate(tx).
		Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		First(&prog).Error
	if err == gorm.ErrRecordNotFound {
		prog = models.ChallengeProgress{
			ID:          uuid.NewString(),
			ChallengeID: challengeID,
			UserID:      userID,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "challenge_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&prog).Error; err != nil {
			return nil, err
		}
		if err := lockForUpdate(tx).
			Where("challenge_id = ? AND user_id = ?", challengeID, userID).
			First(&prog).Error; err != nil {
			return nil, err
		}
		return &prog, nil
	}
	if err != nil {
		return nil, err
	}
	return &prog, nil
}

// bookMeetsConditions checks every present condition; absent conditions
// impose no constraint.
func bookMeetsConditions(book *models.Book, cond models.ChallengeConditions) bool {
	if len(cond.Genres) > 0 && !containsFold(cond.Genres, book.Genre) {
		return false
	}
	if len(cond.Authors) > 0 && !containsFold(cond.Authors, book.Author) {
		return false
	}
	if len(cond.Formats) > 0 && !containsFold(cond.Formats, book.Format) {
		return false
	}
	if cond.MinRating != nil {
		if book.Rating == nil || *book.Rating < *cond.MinRating {
			return false
		}
	}
	if cond.YearMin != nil {
		if book.PublicationYear == nil || *book.PublicationYear < *cond.YearMin {
			return false
		}
	}
	if cond.YearMax != nil {
		if book.PublicationYear == nil || *book.PublicationYear > *cond.YearMax {
			return false
		}
	}
	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(needle)) {
			return true
		}
	}
	return false
}

// SweepExpired logs challenges whose window closed within the last sweep
// period. Closure itself is derived from dates; the sweep only surfaces it.
func (s *ChallengeService) SweepExpired(since time.Duration) error {
	now := time.Now()
	cutoff := models.DateOnly(now.Add(-since))

	var expired []models.Challenge
	err := s.DB.Where("end_date < ? AND end_date >= ?", models.DateOnly(now), cutoff).
		Find(&expired).Error
	if err != nil {
		return err
	}

	for i := range expired {
		ch := &expired[i]
		var finished, total int64
		s.DB.Model(&models.ChallengeProgress{}).
			Where("challenge_id = ?", ch.ID).Count(&total)
		s.DB.Model(&models.ChallengeProgress{}).
			Where("challenge_id = ? AND completed = ?", ch.ID, true).Count(&finished)
		log.Printf("[Sweeper] Challenge %q closed: %d/%d participant(s) finished", ch.Name, finished, total)
	}
	return nil
}
