package services

import (
	"errors"
	"testing"
	"time"

	"reading-progress-system/models"

	"github.com/google/uuid"
)

// openWindow returns a challenge window containing today.
func openWindow() (time.Time, time.Time) {
	now := time.Now()
	return now.AddDate(0, 0, -7), now.AddDate(0, 0, 7)
}

func newChallengeService(t *testing.T) *ChallengeService {
	db := setupTestDB(t)
	return NewChallengeService(db, NewLevelingService(db))
}

func finishedBook(id, genre string, rating *float64) *models.Book {
	return &models.Book{
		ID:         id,
		Title:      "Book " + id,
		Author:     "Some Author",
		Genre:      genre,
		Format:     "paperback",
		Rating:     rating,
		FinishDate: timePtr(time.Now()),
	}
}

func TestCreateChallengeValidation(t *testing.T) {
	svc := newChallengeService(t)
	start, end := openWindow()

	cases := []struct {
		name  string
		input ChallengeInput
	}{
		{"empty name", ChallengeInput{Name: "  ", TargetCount: 3, StartDate: start, EndDate: end}},
		{"zero target", ChallengeInput{Name: "x", TargetCount: 0, StartDate: start, EndDate: end}},
		{"end before start", ChallengeInput{Name: "x", TargetCount: 3, StartDate: end, EndDate: start}},
		{"negative reward", ChallengeInput{Name: "x", TargetCount: 3, StartDate: start, EndDate: end, RewardXP: -1}},
		{"bad min rating", ChallengeInput{Name: "x", TargetCount: 3, StartDate: start, EndDate: end,
			Conditions: &models.ChallengeConditions{MinRating: floatPtr(6)}}},
		{"inverted years", ChallengeInput{Name: "x", TargetCount: 3, StartDate: start, EndDate: end,
			Conditions: &models.ChallengeConditions{YearMin: intPtr(2020), YearMax: intPtr(2010)}}},
	}
	for _, tc := range cases {
		in := tc.input
		if _, err := svc.CreateChallenge("owner", &in); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestCreateChallengeDedupesParticipants(t *testing.T) {
	svc := newChallengeService(t)
	start, end := openWindow()

	ch, err := svc.CreateChallenge("owner", &ChallengeInput{
		Name:        "Summer Sprint",
		TargetCount: 3,
		StartDate:   start,
		EndDate:     end,
		SharedWith:  []string{"friend-1", "owner", "friend-1", "", "friend-2"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ch.JoinCode == "" {
		t.Fatal("expected a join code")
	}
	if len(ch.SharedWith) != 2 {
		t.Fatalf("expected owner and duplicates dropped, got %v", ch.SharedWith)
	}
	if !ch.HasParticipant("owner") || !ch.HasParticipant("friend-1") || !ch.HasParticipant("friend-2") {
		t.Fatalf("participant set wrong: %v", ch.SharedWith)
	}
	if ch.HasParticipant("stranger") {
		t.Fatal("stranger should not be a participant")
	}
}

func TestApplyBookConditionGating(t *testing.T) {
	svc := newChallengeService(t)
	start, end := openWindow()

	ch, err := svc.CreateChallenge("reader", &ChallengeInput{
		Name:        "Great Fantasy Only",
		TargetCount: 5,
		StartDate:   start,
		EndDate:     end,
		Conditions: &models.ChallengeConditions{
			Genres:    []string{"Fantasy"},
			MinRating: floatPtr(4),
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Genre matching is case-insensitive; rating at the threshold counts.
	app, err := svc.ApplyBookToChallenges("reader", finishedBook("b1", "fantasy", floatPtr(4.0)))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(app.Outcomes) != 1 || !app.Outcomes[0].Counted || app.Outcomes[0].NewCount != 1 {
		t.Fatalf("qualifying book should count: %+v", app.Outcomes)
	}

	// Wrong genre.
	app, err = svc.ApplyBookToChallenges("reader", finishedBook("b2", "Sci-Fi", floatPtr(5)))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !app.Outcomes[0].ConditionNotMet || app.Outcomes[0].Counted {
		t.Fatalf("wrong genre should not count: %+v", app.Outcomes[0])
	}

	// Rating below threshold.
	app, err = svc.ApplyBookToChallenges("reader", finishedBook("b3", "Fantasy", floatPtr(3.5)))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !app.Outcomes[0].ConditionNotMet {
		t.Fatalf("low rating should not count: %+v", app.Outcomes[0])
	}

	// Missing rating fails a MinRating condition.
	app, err = svc.ApplyBookToChallenges("reader", finishedBook("b4", "Fantasy", nil))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !app.Outcomes[0].ConditionNotMet {
		t.Fatalf("unrated book should not count: %+v", app.Outcomes[0])
	}

	got, err := svc.GetChallenge(ch.ID, "reader")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Progress) != 1 || got.Progress[0].CompletedBookCount != 1 {
		t.Fatalf("only b1 should have counted: %+v", got.Progress)
	}
}

func TestApplyBookNoDoubleCount(t *testing.T) {
	svc := newChallengeService(t)
	start, end := openWindow()

	ch, err := svc.CreateChallenge("reader", &ChallengeInput{
		Name:        "Anything Goes",
		TargetCount: 10,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	book := finishedBook("b1", "Mystery", nil)
	if _, err := svc.ApplyBookToChallenges("reader", book); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	app, err := svc.ApplyBookToChallenges("reader", book)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if !app.Outcomes[0].AlreadyCounted || app.Outcomes[0].Counted {
		t.Fatalf("repeat book should be a dedup outcome: %+v", app.Outcomes[0])
	}

	got, _ := svc.GetChallenge(ch.ID, "reader")
	if got.Progress[0].CompletedBookCount != 1 {
		t.Fatalf("count should stay at 1, got %d", got.Progress[0].CompletedBookCount)
	}
}

func TestChallengeRewardPaidOncePerParticipant(t *testing.T) {
	svc := newChallengeService(t)
	start, end := openWindow()

	ch, err := svc.CreateChallenge("alice", &ChallengeInput{
		Name:        "Duet",
		TargetCount: 2,
		StartDate:   start,
		EndDate:     end,
		RewardXP:    100,
		SharedWith:  []string{"bob"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Alice crosses the target on her second book.
	if _, err := svc.ApplyBookToChallenges("alice", finishedBook("a1", "", nil)); err != nil {
		t.Fatalf("apply a1: %v", err)
	}
	app, err := svc.ApplyBookToChallenges("alice", finishedBook("a2", "", nil))
	if err != nil {
		t.Fatalf("apply a2: %v", err)
	}
	out := app.Outcomes[0]
	if !out.NewlyCompleted || out.XPAwarded != 100 {
		t.Fatalf("second book should complete with payout: %+v", out)
	}
	if len(app.XPGrants) != 1 {
		t.Fatalf("expected one XP grant, got %d", len(app.XPGrants))
	}

	// A third book still counts but pays nothing more.
	app, err = svc.ApplyBookToChallenges("alice", finishedBook("a3", "", nil))
	if err != nil {
		t.Fatalf("apply a3: %v", err)
	}
	out = app.Outcomes[0]
	if !out.Counted || out.NewlyCompleted || out.XPAwarded != 0 {
		t.Fatalf("overshoot should not pay again: %+v", out)
	}

	aliceAcct, err := svc.Leveling.GetAccount("alice")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if aliceAcct.TotalXP != 100 {
		t.Fatalf("alice should hold exactly 100 XP, got %d", aliceAcct.TotalXP)
	}

	// Bob has his own progress and his own payout.
	if _, err := svc.ApplyBookToChallenges("bob", finishedBook("bb1", "", nil)); err != nil {
		t.Fatalf("apply bb1: %v", err)
	}
	app, err = svc.ApplyBookToChallenges("bob", finishedBook("bb2", "", nil))
	if err != nil {
		t.Fatalf("apply bb2: %v", err)
	}
	if !app.Outcomes[0].NewlyCompleted || app.Outcomes[0].XPAwarded != 100 {
		t.Fatalf("bob's completion should pay independently: %+v", app.Outcomes[0])
	}

	got, _ := svc.GetChallenge(ch.ID, "alice")
	if len(got.Progress) != 2 {
		t.Fatalf("expected two progress rows, got %d", len(got.Progress))
	}
	for _, p := range got.Progress {
		if !p.Completed || p.CompletedAt == nil {
			t.Errorf("participant %s should be completed with a timestamp: %+v", p.UserID, p)
		}
	}
}

func TestChallengeRewardCaughtUpOnRetry(t *testing.T) {
	svc := newChallengeService(t)
	start, end := openWindow()

	ch, err := svc.CreateChallenge("reader", &ChallengeInput{
		Name:        "Solo Sprint",
		TargetCount: 1,
		StartDate:   start,
		EndDate:     end,
		RewardXP:    200,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The count committed but the payout was lost before landing in the
	// ledger (transient failure between the progress commit and the grant).
	book := finishedBook("b1", "", nil)
	now := time.Now()
	svc.DB.Create(&models.ChallengeBook{
		ID:          uuid.NewString(),
		ChallengeID: ch.ID,
		BookID:      book.ID,
		UserID:      "reader",
	})
	svc.DB.Create(&models.ChallengeProgress{
		ID:                 uuid.NewString(),
		ChallengeID:        ch.ID,
		UserID:             "reader",
		CompletedBookCount: 1,
		Completed:          true,
		CompletedAt:        &now,
	})

	// The retried event dedups the count but still pays the reward.
	app, err := svc.ApplyBookToChallenges("reader", book)
	if err != nil {
		t.Fatalf("retry apply: %v", err)
	}
	if len(app.Outcomes) != 1 || !app.Outcomes[0].AlreadyCounted {
		t.Fatalf("retry should be a dedup outcome: %+v", app.Outcomes)
	}
	acct, err := svc.Leveling.GetAccount("reader")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acct.TotalXP != 200 {
		t.Fatalf("lost payout not caught up: total=%d want=200", acct.TotalXP)
	}

	// And never pays twice.
	if _, err := svc.ApplyBookToChallenges("reader", book); err != nil {
		t.Fatalf("second retry: %v", err)
	}
	acct, _ = svc.Leveling.GetAccount("reader")
	if acct.TotalXP != 200 {
		t.Fatalf("payout paid twice: total=%d want=200", acct.TotalXP)
	}
}

func TestBookConditionFields(t *testing.T) {
	cases := []struct {
		name string
		cond models.ChallengeConditions
		book models.Book
		want bool
	}{
		{"author match is case-insensitive",
			models.ChallengeConditions{Authors: []string{"ursula k. le guin"}},
			models.Book{Author: "Ursula K. Le Guin"}, true},
		{"author mismatch",
			models.ChallengeConditions{Authors: []string{"Ursula K. Le Guin"}},
			models.Book{Author: "Someone Else"}, false},
		{"format match",
			models.ChallengeConditions{Formats: []string{"audiobook", "ebook"}},
			models.Book{Format: "Ebook"}, true},
		{"format mismatch",
			models.ChallengeConditions{Formats: []string{"audiobook"}},
			models.Book{Format: "paperback"}, false},
		{"year inside window",
			models.ChallengeConditions{YearMin: intPtr(1990), YearMax: intPtr(2000)},
			models.Book{PublicationYear: intPtr(1995)}, true},
		{"year at lower bound",
			models.ChallengeConditions{YearMin: intPtr(1990)},
			models.Book{PublicationYear: intPtr(1990)}, true},
		{"year below minimum",
			models.ChallengeConditions{YearMin: intPtr(1990)},
			models.Book{PublicationYear: intPtr(1989)}, false},
		{"year above maximum",
			models.ChallengeConditions{YearMax: intPtr(2000)},
			models.Book{PublicationYear: intPtr(2001)}, false},
		{"missing year fails year minimum",
			models.ChallengeConditions{YearMin: intPtr(1990)},
			models.Book{}, false},
		{"missing year fails year maximum",
			models.ChallengeConditions{YearMax: intPtr(2000)},
			models.Book{}, false},
		{"all conditions must hold",
			models.ChallengeConditions{
				Genres:  []string{"Fantasy"},
				Authors: []string{"Le Guin"},
				Formats: []string{"paperback"},
			},
			models.Book{Genre: "Fantasy", Author: "Le Guin", Format: "ebook"}, false},
	}
	for _, tc := range cases {
		if got := bookMeetsConditions(&tc.book, tc.cond); got != tc.want {
			t.Errorf("%s: bookMeetsConditions = %t, want %t", tc.name, got, tc.want)
		}
	}
}

func TestApplyBookContinuesPastFailingChallenge(t *testing.T) {
	svc := newChallengeService(t)
	start, end := openWindow()

	for _, name := range []string{"First", "Second"} {
		if _, err := svc.CreateChallenge("reader", &ChallengeInput{
			Name:        name,
			TargetCount: 3,
			StartDate:   start,
			EndDate:     end,
		}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	// Break the per-challenge count transaction for every challenge.
	if err := svc.DB.Exec("DROP TABLE challenge_books").Error; err != nil {
		t.Fatalf("drop table: %v", err)
	}

	app, err := svc.ApplyBookToChallenges("reader", finishedBook("b1", "", nil))
	if err == nil {
		t.Fatal("expected the failures to surface")
	}
	// Both challenges were still attempted, each carrying its own error.
	if len(app.Outcomes) != 2 {
		t.Fatalf("expected an outcome per challenge despite failures, got %d", len(app.Outcomes))
	}
	for _, out := range app.Outcomes {
		if out.Error == "" || out.Counted {
			t.Fatalf("failed challenge should carry its error: %+v", out)
		}
	}
}

func TestApplyBookOutsideWindow(t *testing.T) {
	svc := newChallengeService(t)
	past := time.Now().AddDate(0, 0, -30)

	if _, err := svc.CreateChallenge("reader", &ChallengeInput{
		Name:        "Last Month",
		TargetCount: 2,
		StartDate:   past,
		EndDate:     past.AddDate(0, 0, 14),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	app, err := svc.ApplyBookToChallenges("reader", finishedBook("b1", "", nil))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(app.Outcomes) != 0 {
		t.Fatalf("expired challenge should be skipped entirely, got %+v", app.Outcomes)
	}
}

func TestApplyUnfinishedBookSkipped(t *testing.T) {
	svc := newChallengeService(t)
	start, end := openWindow()

	if _, err := svc.CreateChallenge("reader", &ChallengeInput{
		Name:        "Open",
		TargetCount: 1,
		StartDate:   start,
		EndDate:     end,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	book := &models.Book{ID: "b1", Title: "Still Reading"}
	app, err := svc.ApplyBookToChallenges("reader", book)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(app.Outcomes) != 0 || len(app.XPGrants) != 0 {
		t.Fatalf("unfinished book must count toward nothing: %+v", app)
	}
}

func TestJoinByCode(t *testing.T) {
	svc := newChallengeService(t)
	start, end := openWindow()

	ch, err := svc.CreateChallenge("owner", &ChallengeInput{
		Name:        "Book Club",
		TargetCount: 3,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	joined, err := svc.JoinByCode("newcomer", ch.JoinCode)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !joined.HasParticipant("newcomer") {
		t.Fatal("newcomer should be a participant after joining")
	}

	// Joining twice is a no-op.
	joined, err = svc.JoinByCode("newcomer", ch.JoinCode)
	if err != nil {
		t.Fatalf("re-join: %v", err)
	}
	if len(joined.SharedWith) != 1 {
		t.Fatalf("duplicate join should not duplicate membership: %v", joined.SharedWith)
	}

	if _, err := svc.JoinByCode("newcomer", "no-such-code"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown code should be not-found, got %v", err)
	}
}

func TestJoinAndSharePreserveMembers(t *testing.T) {
	svc := newChallengeService(t)
	start, end := openWindow()

	ch, err := svc.CreateChallenge("owner", &ChallengeInput{
		Name:        "Group Read",
		TargetCount: 3,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Interleaved joins and shares all land in the member list.
	if _, err := svc.JoinByCode("joiner-1", ch.JoinCode); err != nil {
		t.Fatalf("join 1: %v", err)
	}
	if _, err := svc.ShareChallenge("owner", ch.ID, []string{"shared-1"}); err != nil {
		t.Fatalf("share: %v", err)
	}
	if _, err := svc.JoinByCode("joiner-2", ch.JoinCode); err != nil {
		t.Fatalf("join 2: %v", err)
	}

	got, err := svc.GetChallenge(ch.ID, "owner")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for _, member := range []string{"joiner-1", "shared-1", "joiner-2"} {
		if !got.HasParticipant(member) {
			t.Errorf("member %s was dropped: %v", member, got.SharedWith)
		}
	}
}

func TestShareAndVisibility(t *testing.T) {
	svc := newChallengeService(t)
	start, end := openWindow()

	ch, err := svc.CreateChallenge("owner", &ChallengeInput{
		Name:        "Private Goal",
		TargetCount: 2,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Non-participants see nothing, not even existence.
	if _, err := svc.GetChallenge(ch.ID, "stranger"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger read should be not-found, got %v", err)
	}

	// Only the owner can share.
	if _, err := svc.ShareChallenge("stranger", ch.ID, []string{"friend"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("non-owner share should be not-found, got %v", err)
	}
	if _, err := svc.ShareChallenge("owner", ch.ID, []string{"friend"}); err != nil {
		t.Fatalf("share: %v", err)
	}

	got, err := svc.GetChallenge(ch.ID, "friend")
	if err != nil {
		t.Fatalf("friend read after share: %v", err)
	}
	if !got.Active {
		t.Fatal("challenge inside its window should be active")
	}

	list, err := svc.ListChallengesForUser("friend", false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != ch.ID {
		t.Fatalf("friend should list exactly the shared challenge, got %v", list)
	}
	if list, _ := svc.ListChallengesForUser("stranger", false); len(list) != 0 {
		t.Fatalf("stranger should list nothing, got %v", list)
	}
}

func TestUpdateAndDeleteOwnerOnly(t *testing.T) {
	svc := newChallengeService(t)
	start, end := openWindow()

	ch, err := svc.CreateChallenge("owner", &ChallengeInput{
		Name:        "Original",
		TargetCount: 2,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	in := &ChallengeInput{Name: "Renamed", TargetCount: 4, StartDate: start, EndDate: end, RewardXP: 50}
	if _, err := svc.UpdateChallenge("stranger", ch.ID, in); !errors.Is(err, ErrNotFound) {
		t.Fatalf("non-owner update should be not-found, got %v", err)
	}
	updated, err := svc.UpdateChallenge("owner", ch.ID, in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Renamed" || updated.TargetCount != 4 || updated.RewardXP != 50 {
		t.Fatalf("update not applied: %+v", updated)
	}

	if err := svc.DeleteChallenge("stranger", ch.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("non-owner delete should be not-found, got %v", err)
	}
	if err := svc.DeleteChallenge("owner", ch.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetChallenge(ch.ID, "owner"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted challenge should be gone, got %v", err)
	}
}
