package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lily/pkg/model"
	"github.com/m-mizutani/lily/pkg/repository"
)

func newMemory(t *testing.T) repository.Repository {
	return repository.NewMemory()
}

func newSQLite(t *testing.T) repository.Repository {
	repo, err := repository.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "lily.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newPostgres(t *testing.T) repository.Repository {
	dsn := os.Getenv("TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_URL must be set to run Postgres tests")
	}

	ctx := context.Background()
	repo, err := repository.NewPostgres(ctx, dsn)
	gt.NoError(t, err)
	gt.NoError(t, repo.Migrate(ctx))
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newFirestore(t *testing.T) repository.Repository {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.NewFirestore(context.Background(), projectID, databaseID)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

var backends = map[string]func(t *testing.T) repository.Repository{
	"memory":    newMemory,
	"sqlite":    newSQLite,
	"postgres":  newPostgres,
	"firestore": newFirestore,
}

// randomAddress keeps runs against shared databases isolated
func randomAddress() model.Address {
	return model.NewWhatsAppAddress(fmt.Sprintf("test-%s", uuid.NewString()))
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestUser(t *testing.T) {
	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			repo := setup(t)
			ctx := context.Background()
			addr := randomAddress()

			_, err := repo.GetUser(ctx, addr)
			gt.True(t, errors.Is(err, model.ErrUserNotFound))

			gt.NoError(t, repo.EnsureUser(ctx, addr))
			gt.NoError(t, repo.UpdateUserMemory(ctx, addr, "likes mornings"))
			gt.NoError(t, repo.MarkFirstTaskSent(ctx, addr))

			// second ensure must not reset the row
			gt.NoError(t, repo.EnsureUser(ctx, addr))

			user, err := repo.GetUser(ctx, addr)
			gt.NoError(t, err)
			gt.Equal(t, user.Address, addr)
			gt.Equal(t, user.Memory, "likes mornings")
			gt.True(t, user.FirstTaskSent)
		})
	}
}

func TestUpdateMissingUser(t *testing.T) {
	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			repo := setup(t)
			err := repo.UpdateUserMemory(context.Background(), randomAddress(), "note")
			gt.True(t, errors.Is(err, model.ErrUserNotFound))
		})
	}
}

func TestListTasksOrder(t *testing.T) {
	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			repo := setup(t)
			ctx := context.Background()
			addr := randomAddress()
			base := time.Now().Truncate(time.Second)

			noDue := model.NewTask(addr, "no due", nil, base)
			late := model.NewTask(addr, "late", timePtr(base.Add(3*time.Hour)), base.Add(time.Second))
			early := model.NewTask(addr, "early", timePtr(base.Add(time.Hour)), base.Add(2*time.Second))
			done := model.NewTask(addr, "done", timePtr(base.Add(2*time.Hour)), base.Add(3*time.Second))
			done.Status = model.TaskDone
			other := model.NewTask(randomAddress(), "other user", timePtr(base), base)

			for _, task := range []*model.Task{noDue, late, early, done, other} {
				gt.NoError(t, repo.PutTask(ctx, task))
			}

			pending, err := repo.ListTasks(ctx, repository.ListTasksInput{
				Address: addr,
				Status:  model.TaskPending,
				Order:   repository.OrderByDueAsc,
				Limit:   20,
			})
			gt.NoError(t, err)
			gt.A(t, pending).Length(3)
			gt.Equal(t, pending[0].Summary, "early")
			gt.Equal(t, pending[1].Summary, "late")
			gt.Equal(t, pending[2].Summary, "no due")
			gt.True(t, pending[2].DueAt == nil)

			recent, err := repo.ListTasks(ctx, repository.ListTasksInput{
				Address: addr,
				Status:  model.TaskPending,
				Order:   repository.OrderByCreatedDesc,
				Limit:   2,
			})
			gt.NoError(t, err)
			gt.A(t, recent).Length(2)
			gt.Equal(t, recent[0].Summary, "early")
			gt.Equal(t, recent[1].Summary, "late")
		})
	}
}

func TestGuardedTransitions(t *testing.T) {
	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			repo := setup(t)
			ctx := context.Background()
			addr := randomAddress()
			now := time.Now().Truncate(time.Second)

			task := model.NewTask(addr, "call the dentist", timePtr(now), now)
			gt.NoError(t, repo.PutTask(ctx, task))

			gt.NoError(t, repo.RescheduleTask(ctx, task.ID, now.Add(time.Hour)))
			gt.NoError(t, repo.CompleteTask(ctx, task.ID))

			err := repo.MarkTaskReminded(ctx, task.ID, "open the calendar")
			gt.True(t, errors.Is(err, model.ErrTaskNotPending))

			err = repo.RescheduleTask(ctx, task.ID, now)
			gt.True(t, errors.Is(err, model.ErrTaskNotPending))

			err = repo.CompleteTask(ctx, model.NewTaskID())
			gt.True(t, errors.Is(err, model.ErrTaskNotFound))

			done, err := repo.ListTasks(ctx, repository.ListTasksInput{
				Address: addr,
				Status:  model.TaskDone,
				Order:   repository.OrderByCreatedDesc,
				Limit:   5,
			})
			gt.NoError(t, err)
			gt.A(t, done).Length(1)
			gt.Equal(t, done[0].Scratch, "")
			gt.True(t, done[0].DueAt.Equal(now.Add(time.Hour)))
		})
	}
}

func TestListDueTasks(t *testing.T) {
	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			repo := setup(t)
			ctx := context.Background()
			addr := randomAddress()
			now := time.Now().Truncate(time.Second)

			overdue := model.NewTask(addr, "overdue", timePtr(now.Add(-time.Hour)), now)
			exact := model.NewTask(addr, "exact", timePtr(now), now)
			future := model.NewTask(addr, "future", timePtr(now.Add(time.Hour)), now)
			unset := model.NewTask(addr, "unset", nil, now)
			reminded := model.NewTask(addr, "reminded", timePtr(now.Add(-2*time.Hour)), now)
			reminded.Status = model.TaskReminded

			for _, task := range []*model.Task{overdue, exact, future, unset, reminded} {
				gt.NoError(t, repo.PutTask(ctx, task))
			}

			due, err := repo.ListDueTasks(ctx, now, 20)
			gt.NoError(t, err)

			var mine []*model.Task
			for _, task := range due {
				if task.Address == addr {
					mine = append(mine, task)
				}
			}
			gt.A(t, mine).Length(2)
			gt.Equal(t, mine[0].Summary, "overdue")
			gt.Equal(t, mine[1].Summary, "exact")

			gt.NoError(t, repo.MarkTaskReminded(ctx, overdue.ID, "grab a pen"))
			reminderList, err := repo.ListTasks(ctx, repository.ListTasksInput{
				Address: addr,
				Status:  model.TaskReminded,
				Order:   repository.OrderByCreatedDesc,
			})
			gt.NoError(t, err)
			gt.A(t, reminderList).Length(2)
		})
	}
}

func TestRecentTurns(t *testing.T) {
	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			repo := setup(t)
			ctx := context.Background()
			addr := randomAddress()
			base := time.Now().Truncate(time.Second)

			for i := 0; i < 3; i++ {
				turns := model.NewTurnPair(addr, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i), base.Add(time.Duration(i)*time.Minute))
				gt.NoError(t, repo.PutTurns(ctx, turns...))
			}

			turns, err := repo.ListRecentTurns(ctx, addr, 4)
			gt.NoError(t, err)
			gt.A(t, turns).Length(4)
			gt.Equal(t, turns[0].Content, "q1")
			gt.Equal(t, turns[0].Role, model.RoleUser)
			gt.Equal(t, turns[1].Content, "a1")
			gt.Equal(t, turns[1].Role, model.RoleAssistant)
			gt.Equal(t, turns[3].Content, "a2")
		})
	}
}
