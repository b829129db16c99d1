package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionUsers = "users"
	collectionTasks = "tasks"
	collectionTurns = "turns"
)

// Firestore implements Repository using Cloud Firestore
type Firestore struct {
	client *firestore.Client
}

var _ Repository = (*Firestore)(nil)

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	return &Firestore{client: client}, nil
}

func (r *Firestore) userRef(addr model.Address) *firestore.DocumentRef {
	return r.client.Collection(collectionUsers).Doc(addr.String())
}

func (r *Firestore) taskRef(id model.TaskID) *firestore.DocumentRef {
	return r.client.Collection(collectionTasks).Doc(string(id))
}

func (r *Firestore) EnsureUser(ctx context.Context, addr model.Address) error {
	user := &model.User{Address: addr, CreatedAt: time.Now()}
	if _, err := r.userRef(addr).Create(ctx, user); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return goerr.Wrap(err, "failed to create user", goerr.V("address", addr))
	}
	return nil
}

func (r *Firestore) GetUser(ctx context.Context, addr model.Address) (*model.User, error) {
	doc, err := r.userRef(addr).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrUserNotFound, "failed to get user", goerr.V("address", addr))
		}
		return nil, goerr.Wrap(err, "failed to get user", goerr.V("address", addr))
	}

	var user model.User
	if err := doc.DataTo(&user); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal user", goerr.V("address", addr))
	}
	return &user, nil
}

func (r *Firestore) updateUser(ctx context.Context, addr model.Address, updates []firestore.Update) error {
	if _, err := r.userRef(addr).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrUserNotFound, "failed to update user", goerr.V("address", addr))
		}
		return goerr.Wrap(err, "failed to update user", goerr.V("address", addr))
	}
	return nil
}

func (r *Firestore) UpdateUserMemory(ctx context.Context, addr model.Address, memory string) error {
	return r.updateUser(ctx, addr, []firestore.Update{{Path: "Memory", Value: memory}})
}

func (r *Firestore) MarkFirstTaskSent(ctx context.Context, addr model.Address) error {
	return r.updateUser(ctx, addr, []firestore.Update{{Path: "FirstTaskSent", Value: true}})
}

func (r *Firestore) PutTask(ctx context.Context, task *model.Task) error {
	if _, err := r.taskRef(task.ID).Set(ctx, task); err != nil {
		return goerr.Wrap(err, "failed to put task", goerr.V("id", task.ID))
	}
	return nil
}

func collectTasks(iter *firestore.DocumentIterator) ([]*model.Task, error) {
	defer iter.Stop()

	var tasks []*model.Task
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate tasks")
		}

		var task model.Task
		if err := doc.DataTo(&task); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal task", goerr.V("doc_id", doc.Ref.ID))
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

func (r *Firestore) ListTasks(ctx context.Context, input ListTasksInput) ([]*model.Task, error) {
	q := r.client.Collection(collectionTasks).
		Where("Address", "==", input.Address.String()).
		Where("Status", "==", string(input.Status))

	// Firestore sorts null before timestamps, so due order is applied after the fetch
	if input.Order == OrderByCreatedDesc {
		q = q.OrderBy("CreatedAt", firestore.Desc)
		if input.Limit > 0 {
			q = q.Limit(input.Limit)
		}
	}

	tasks, err := collectTasks(q.Documents(ctx))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tasks", goerr.V("address", input.Address), goerr.V("status", input.Status))
	}

	if input.Order == OrderByDueAsc {
		model.SortByDue(tasks)
		tasks = truncate(tasks, input.Limit)
	}
	return tasks, nil
}

func (r *Firestore) ListDueTasks(ctx context.Context, now time.Time, limit int) ([]*model.Task, error) {
	q := r.client.Collection(collectionTasks).
		Where("Status", "==", string(model.TaskPending)).
		Where("DueAt", "<=", now).
		OrderBy("DueAt", firestore.Asc).
		OrderBy("CreatedAt", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	tasks, err := collectTasks(q.Documents(ctx))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list due tasks", goerr.V("now", now))
	}
	return tasks, nil
}

// guardedUpdate applies fn to a pending task inside a transaction
func (r *Firestore) guardedUpdate(ctx context.Context, id model.TaskID, fn func(*model.Task) error) error {
	ref := r.taskRef(id)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrTaskNotFound, "failed to get task", goerr.V("id", id))
			}
			return goerr.Wrap(err, "failed to get task", goerr.V("id", id))
		}

		var task model.Task
		if err := doc.DataTo(&task); err != nil {
			return goerr.Wrap(err, "failed to unmarshal task", goerr.V("id", id))
		}
		if task.Status != model.TaskPending {
			return goerr.Wrap(model.ErrTaskNotPending, "task is already closed", goerr.V("id", id), goerr.V("status", task.Status))
		}
		if err := fn(&task); err != nil {
			return err
		}

		return tx.Set(ref, &task)
	})
}

func (r *Firestore) CompleteTask(ctx context.Context, id model.TaskID) error {
	return r.guardedUpdate(ctx, id, func(t *model.Task) error {
		t.Status = model.TaskDone
		return nil
	})
}

func (r *Firestore) RescheduleTask(ctx context.Context, id model.TaskID, dueAt time.Time) error {
	return r.guardedUpdate(ctx, id, func(t *model.Task) error {
		t.DueAt = &dueAt
		return nil
	})
}

func (r *Firestore) MarkTaskReminded(ctx context.Context, id model.TaskID, scratch string) error {
	return r.guardedUpdate(ctx, id, func(t *model.Task) error {
		t.Status = model.TaskReminded
		t.Scratch = scratch
		return nil
	})
}

func (r *Firestore) PutTurns(ctx context.Context, turns ...*model.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	batch := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(turns))
	for _, turn := range turns {
		job, err := batch.Set(r.client.Collection(collectionTurns).Doc(string(turn.ID)), turn)
		if err != nil {
			batch.End()
			return goerr.Wrap(err, "failed to enqueue turn", goerr.V("id", turn.ID))
		}
		jobs = append(jobs, job)
	}
	batch.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return goerr.Wrap(err, "failed to put turn", goerr.V("id", turns[i].ID))
		}
	}
	return nil
}

func (r *Firestore) ListRecentTurns(ctx context.Context, addr model.Address, limit int) ([]*model.Turn, error) {
	q := r.client.Collection(collectionTurns).
		Where("Address", "==", addr.String()).
		OrderBy("CreatedAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var turns []*model.Turn
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate turns", goerr.V("address", addr))
		}

		var turn model.Turn
		if err := doc.DataTo(&turn); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal turn", goerr.V("doc_id", doc.Ref.ID))
		}
		turns = append(turns, &turn)
	}

	// newest first from the query, callers get chronological order
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (r *Firestore) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}
