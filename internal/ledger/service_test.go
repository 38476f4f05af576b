package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/lib/pq"

	"github.com/hitoshi/studyapp/internal/model"
	"github.com/hitoshi/studyapp/internal/repository"
)

// --- インメモリ台帳 ---

// memLedger はLedgerRepositoryとUserRepositoryの検索系をメモリ上で実装する。
// Applyは失敗時に何も変更しない（トランザクションのロールバックを模倣する）。
type memLedger struct {
	mu         sync.Mutex
	users      map[string]*model.User
	activities []*model.UserActivity
	applyErr   error
}

func newMemLedger(userIDs ...string) *memLedger {
	l := &memLedger{users: map[string]*model.User{}}
	for _, id := range userIDs {
		l.users[id] = &model.User{ID: id, Username: id}
	}
	return l
}

func (l *memLedger) Apply(ctx context.Context, userID string, minutes int, activity *model.UserActivity) (*model.Totals, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applyErr != nil {
		return nil, l.applyErr
	}
	u, ok := l.users[userID]
	if !ok {
		return nil, nil
	}
	if activity != nil {
		u.Points += activity.PointsEarned
		l.activities = append(l.activities, activity)
	}
	u.TimeSpent += minutes
	return &model.Totals{Points: u.Points, TimeSpent: u.TimeSpent}, nil
}

func (l *memLedger) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.UserActivity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*model.UserActivity
	for i := len(l.activities) - 1; i >= 0 && len(out) < limit; i-- {
		if l.activities[i].UserID == userID {
			out = append(out, l.activities[i])
		}
	}
	return out, nil
}

func (l *memLedger) SumPoints(ctx context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := 0
	for _, a := range l.activities {
		if a.UserID == userID {
			sum += a.PointsEarned
		}
	}
	return sum, nil
}

func (l *memLedger) ListMismatches(ctx context.Context) ([]repository.TotalsMismatch, error) {
	var out []repository.TotalsMismatch
	for id, u := range l.users {
		sum, _ := l.SumPoints(ctx, id)
		if sum != u.Points {
			out = append(out, repository.TotalsMismatch{UserID: id, CachedPoints: u.Points, LedgerPoints: sum})
		}
	}
	return out, nil
}

func (l *memLedger) activitiesOf(userID string) []*model.UserActivity {
	var out []*model.UserActivity
	for _, a := range l.activities {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}

// memUsers はUserRepositoryのうちFindByIDのみ意味を持つ実装。
type memUsers struct {
	repository.UserRepository
	ledger *memLedger
}

func (m memUsers) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := m.ledger.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func newTestService(l *memLedger) *Service {
	return NewService(l, memUsers{ledger: l}, nil)
}

// --- テスト ---

func TestService_RecordTimeSpent_PointConversion(t *testing.T) {
	tests := []struct {
		minutes    int
		wantPoints int
	}{
		{0, 0}, {1, 0}, {2, 0}, {3, 0}, {4, 0},
		{5, 1}, {12, 2}, {27, 5},
	}

	for _, tt := range tests {
		l := newMemLedger("u1")
		svc := newTestService(l)

		report, err := svc.RecordTimeSpent(context.Background(), "u1", tt.minutes)
		if err != nil {
			t.Fatalf("RecordTimeSpent(%d) returned error: %v", tt.minutes, err)
		}
		if report.PointsEarned != tt.wantPoints || report.Points != tt.wantPoints {
			t.Errorf("RecordTimeSpent(%d): earned=%d points=%d, want %d", tt.minutes, report.PointsEarned, report.Points, tt.wantPoints)
		}
		if report.TimeSpent != tt.minutes {
			t.Errorf("RecordTimeSpent(%d): time_spent=%d", tt.minutes, report.TimeSpent)
		}

		acts := l.activitiesOf("u1")
		if tt.wantPoints == 0 {
			if len(acts) != 0 {
				t.Errorf("RecordTimeSpent(%d): expected no activity, got %d", tt.minutes, len(acts))
			}
			continue
		}
		if len(acts) != 1 || acts[0].ActivityType != model.ActivityTimeSpent || acts[0].PointsEarned != tt.wantPoints {
			t.Errorf("RecordTimeSpent(%d): unexpected activities %+v", tt.minutes, acts)
		}
	}
}

// 端数は報告ごとに切り捨てられ、繰り越されない
func TestService_RecordTimeSpent_NoCarryOver(t *testing.T) {
	l := newMemLedger("u1")
	svc := newTestService(l)

	for i := 0; i < 3; i++ {
		if _, err := svc.RecordTimeSpent(context.Background(), "u1", 4); err != nil {
			t.Fatalf("RecordTimeSpent returned error: %v", err)
		}
	}
	u := l.users["u1"]
	if u.TimeSpent != 12 || u.Points != 0 {
		t.Errorf("totals = (%d min, %d pts), want (12, 0)", u.TimeSpent, u.Points)
	}
}

func TestService_RecordTimeSpent_Negative(t *testing.T) {
	l := newMemLedger("u1")
	svc := newTestService(l)

	if _, err := svc.RecordTimeSpent(context.Background(), "u1", -1); !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if l.users["u1"].TimeSpent != 0 {
		t.Error("time_spent must not change")
	}
}

func TestService_AwardPoints(t *testing.T) {
	l := newMemLedger("u1")
	svc := newTestService(l)

	totals, err := svc.AwardPoints(context.Background(), "u1", 3, model.ActivityQuizCorrect)
	if err != nil {
		t.Fatalf("AwardPoints returned error: %v", err)
	}
	if totals.Points != 3 {
		t.Errorf("Points = %d, want 3", totals.Points)
	}
	acts := l.activitiesOf("u1")
	if len(acts) != 1 || acts[0].PointsEarned != 3 || acts[0].ActivityType != model.ActivityQuizCorrect {
		t.Errorf("unexpected activities: %+v", acts)
	}
}

// 0ポイントでもアクティビティは1件記録される
func TestService_AwardPoints_ZeroRecordsActivity(t *testing.T) {
	l := newMemLedger("u1")
	svc := newTestService(l)

	totals, err := svc.AwardPoints(context.Background(), "u1", 0, "")
	if err != nil {
		t.Fatalf("AwardPoints returned error: %v", err)
	}
	if totals.Points != 0 {
		t.Errorf("Points = %d, want 0", totals.Points)
	}
	acts := l.activitiesOf("u1")
	if len(acts) != 1 || acts[0].ActivityType != model.ActivityOther {
		t.Errorf("unexpected activities: %+v", acts)
	}
}

func TestService_AwardPoints_Negative(t *testing.T) {
	l := newMemLedger("u1")
	svc := newTestService(l)

	if _, err := svc.AwardPoints(context.Background(), "u1", -5, model.ActivityOther); !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(l.activities) != 0 {
		t.Error("no activity should be recorded")
	}
}

func TestService_InputBounds(t *testing.T) {
	tests := []struct {
		name    string
		call    func(svc *Service) error
		wantErr bool
	}{
		{"ポイント上限", func(svc *Service) error {
			_, err := svc.AwardPoints(context.Background(), "u1", model.MaxPointsPerAward, model.ActivityOther)
			return err
		}, false},
		{"ポイント上限超過", func(svc *Service) error {
			_, err := svc.AwardPoints(context.Background(), "u1", model.MaxPointsPerAward+1, model.ActivityOther)
			return err
		}, true},
		{"int32を超えるポイント", func(svc *Service) error {
			_, err := svc.AwardPoints(context.Background(), "u1", math.MaxInt32, model.ActivityOther)
			return err
		}, true},
		{"学習時間上限", func(svc *Service) error {
			_, err := svc.RecordTimeSpent(context.Background(), "u1", model.MaxMinutesPerReport)
			return err
		}, false},
		{"学習時間上限超過", func(svc *Service) error {
			_, err := svc.RecordTimeSpent(context.Background(), "u1", model.MaxMinutesPerReport+1)
			return err
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newMemLedger("u1")
			err := tt.call(newTestService(l))
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !model.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(l.activities) != 0 || l.users["u1"].Points != 0 || l.users["u1"].TimeSpent != 0 {
				t.Error("state must be unchanged after validation failure")
			}
		})
	}
}

// 学習時間報告と初期残高の種類はAwardPointsから記録できない
func TestService_AwardPoints_ReservedActivityType(t *testing.T) {
	for _, activityType := range []model.ActivityType{model.ActivityTimeSpent, model.ActivitySeed} {
		t.Run(string(activityType), func(t *testing.T) {
			l := newMemLedger("u1")
			svc := newTestService(l)

			if _, err := svc.AwardPoints(context.Background(), "u1", 10, activityType); !model.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(l.activities) != 0 {
				t.Error("no activity should be recorded")
			}
		})
	}
}

// 累計値がカラムの範囲を超えた場合は500ではなく検証エラーになる
func TestService_TotalsOverflowIsValidation(t *testing.T) {
	for _, code := range []pq.ErrorCode{"22003", "23514"} {
		t.Run(string(code), func(t *testing.T) {
			l := newMemLedger("u1")
			l.applyErr = fmt.Errorf("failed to update totals: %w", &pq.Error{Code: code})
			svc := newTestService(l)

			if _, err := svc.AwardPoints(context.Background(), "u1", 10, model.ActivityOther); !model.IsValidation(err) {
				t.Errorf("AwardPoints: expected validation error, got %v", err)
			}
			if _, err := svc.RecordTimeSpent(context.Background(), "u1", 30); !model.IsValidation(err) {
				t.Errorf("RecordTimeSpent: expected validation error, got %v", err)
			}
		})
	}
}

func TestService_UnknownUser(t *testing.T) {
	svc := newTestService(newMemLedger())

	if _, err := svc.AwardPoints(context.Background(), "ghost", 1, model.ActivityOther); !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("AwardPoints: expected USER_NOT_FOUND, got %v", err)
	}
	if _, err := svc.RecordTimeSpent(context.Background(), "ghost", 10); !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("RecordTimeSpent: expected USER_NOT_FOUND, got %v", err)
	}
	if _, err := svc.VerifyTotals(context.Background(), "ghost"); !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("VerifyTotals: expected USER_NOT_FOUND, got %v", err)
	}
}

// 保存に失敗した場合は残高も台帳も変化しない
func TestService_ApplyFailureLeavesStateUnchanged(t *testing.T) {
	l := newMemLedger("u1")
	l.applyErr = errors.New("serialization failure")
	svc := newTestService(l)

	if _, err := svc.AwardPoints(context.Background(), "u1", 10, model.ActivityOther); err == nil {
		t.Fatal("expected error, got nil")
	}
	if _, err := svc.RecordTimeSpent(context.Background(), "u1", 30); err == nil {
		t.Fatal("expected error, got nil")
	}
	if l.users["u1"].Points != 0 || l.users["u1"].TimeSpent != 0 || len(l.activities) != 0 {
		t.Error("state must be unchanged after failure")
	}
}

// 任意の操作列の後でも残高は台帳合計と一致する
func TestService_InvariantHoldsAcrossOperations(t *testing.T) {
	l := newMemLedger("u1", "u2")
	svc := newTestService(l)
	ctx := context.Background()

	ops := []func(){
		func() { svc.RecordTimeSpent(ctx, "u1", 27) },
		func() { svc.AwardPoints(ctx, "u1", 4, model.ActivityQuestionAsked) },
		func() { svc.RecordTimeSpent(ctx, "u2", 3) },
		func() { svc.AwardPoints(ctx, "u2", 0, model.ActivityOther) },
		func() { svc.AwardPoints(ctx, "u1", -2, model.ActivityOther) },
		func() { svc.RecordTimeSpent(ctx, "u2", 61) },
		func() { svc.RecordTimeSpent(ctx, "u1", -10) },
	}
	for _, op := range ops {
		op()
	}

	for _, id := range []string{"u1", "u2"} {
		v, err := svc.VerifyTotals(ctx, id)
		if err != nil {
			t.Fatalf("VerifyTotals(%s) returned error: %v", id, err)
		}
		if !v.Consistent() {
			t.Errorf("%s: cached=%d ledger=%d", id, v.CachedPoints, v.LedgerPoints)
		}
	}
	mismatches, err := svc.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll returned error: %v", err)
	}
	if len(mismatches) != 0 {
		t.Errorf("unexpected mismatches: %+v", mismatches)
	}
	if l.users["u1"].Points != 9 || l.users["u2"].Points != 12 {
		t.Errorf("points = (%d, %d), want (9, 12)", l.users["u1"].Points, l.users["u2"].Points)
	}
}

// 並行した報告でも加算が失われない
func TestService_ConcurrentReports(t *testing.T) {
	l := newMemLedger("u1")
	svc := newTestService(l)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.RecordTimeSpent(context.Background(), "u1", 5)
		}()
	}
	wg.Wait()

	u := l.users["u1"]
	if u.TimeSpent != 100 || u.Points != 20 {
		t.Errorf("totals = (%d min, %d pts), want (100, 20)", u.TimeSpent, u.Points)
	}
}

func TestService_ListActivities_Limits(t *testing.T) {
	var gotLimit int
	repo := &limitRecorder{memLedger: newMemLedger("u1"), got: &gotLimit}
	svc := NewService(repo, memUsers{ledger: repo.memLedger}, nil)

	tests := []struct{ in, want int }{{0, DefaultActivityLimit}, {-1, DefaultActivityLimit}, {10, 10}, {1000, MaxActivityLimit}}
	for _, tt := range tests {
		acts, err := svc.ListActivities(context.Background(), "u1", tt.in)
		if err != nil {
			t.Fatalf("ListActivities returned error: %v", err)
		}
		if acts == nil {
			t.Error("activities must be non-nil")
		}
		if gotLimit != tt.want {
			t.Errorf("limit(%d) = %d, want %d", tt.in, gotLimit, tt.want)
		}
	}
}

func TestService_Seed(t *testing.T) {
	l := newMemLedger("admin")
	svc := newTestService(l)

	totals, err := svc.Seed(context.Background(), "admin", 100, 120, "seed")
	if err != nil {
		t.Fatalf("Seed returned error: %v", err)
	}
	if totals.Points != 100 || totals.TimeSpent != 120 {
		t.Errorf("totals = %+v, want {100 120}", *totals)
	}
	v, _ := svc.VerifyTotals(context.Background(), "admin")
	if !v.Consistent() {
		t.Error("seeded balance must match the ledger")
	}
}

type limitRecorder struct {
	*memLedger
	got *int
}

func (r *limitRecorder) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.UserActivity, error) {
	*r.got = limit
	return r.memLedger.ListByUserID(ctx, userID, limit)
}
