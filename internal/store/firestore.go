package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/jason-s-yu/quizroom/internal/quiz"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreGateway implements Gateway against the collection layout in
// spec §6.3: games/{id} (+ results/{uid} subcollection), users/{id},
// quizes/{id}, questions/{id}. Grounded on original_source/Back/main.py,
// which targets this exact layout with the Python Firestore client.
type FirestoreGateway struct {
	client *firestore.Client
	log    *logrus.Entry
}

// NewFirestoreGateway resolves credentials the same way
// original_source/Back/main.py's get_firestore_client does: a key file
// path, then an inline JSON credential blob, then application-default
// credentials.
func NewFirestoreGateway(ctx context.Context, projectID string, logger *logrus.Logger) (*FirestoreGateway, error) {
	var opts []option.ClientOption

	keyPath := os.Getenv("FIREBASE_KEY_PATH")
	if _, err := os.Stat(keyPath); keyPath != "" && err == nil {
		opts = append(opts, option.WithCredentialsFile(keyPath))
	} else if inline := os.Getenv("FIREBASE_CREDENTIALS_JSON"); inline != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(inline)))
	}
	// Otherwise fall through to application-default credentials.

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: firestore client init: %v", ErrStoreUnavailable, err)
	}
	return &FirestoreGateway{client: client, log: logger.WithField("component", "firestore")}, nil
}

func (g *FirestoreGateway) Close() error {
	return g.client.Close()
}

func (g *FirestoreGateway) FetchUser(ctx context.Context, userID string) (*User, error) {
	doc, err := g.client.Collection("users").Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrMissing
		}
		return nil, fmt.Errorf("%w: fetch user %s: %v", ErrStoreUnavailable, userID, err)
	}
	data := doc.Data()
	name, _ := data["name"].(string)
	lastName, _ := data["lastName"].(string)
	isTeacher, _ := data["isTeacher"].(bool)
	return &User{
		ID:       userID,
		Username: fmt.Sprintf("%s %s", name, lastName),
		Teacher:  isTeacher,
	}, nil
}

func (g *FirestoreGateway) FetchQuiz(ctx context.Context, quizID string) (*quiz.Quiz, error) {
	doc, err := g.client.Collection("quizes").Doc(quizID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrMissing
		}
		return nil, fmt.Errorf("%w: fetch quiz %s: %v", ErrStoreUnavailable, quizID, err)
	}
	data := doc.Data()
	title, _ := data["title"].(string)
	refs, _ := data["questions"].([]interface{})

	questions := make([]quiz.Question, 0, len(refs))
	for _, r := range refs {
		qID, ok := r.(string)
		if !ok {
			continue
		}
		qDoc, err := g.client.Collection("questions").Doc(qID).Get(ctx)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				g.log.Warnf("quiz %s references missing question %s", quizID, qID)
				continue
			}
			return nil, fmt.Errorf("%w: fetch question %s: %v", ErrStoreUnavailable, qID, err)
		}
		questions = append(questions, questionFromDocument(qDoc.Data()))
	}

	return &quiz.Quiz{Title: title, Questions: questions}, nil
}

func questionFromDocument(data map[string]interface{}) quiz.Question {
	q := quiz.Question{
		Prompt: stringField(data, "question"),
		Type:   quiz.Type(stringField(data, "type")),
		Point:  intField(data, "point", 1),
	}
	if opts, ok := data["options"].([]interface{}); ok {
		for _, o := range opts {
			if s, ok := o.(string); ok {
				q.Options = append(q.Options, s)
			}
		}
	}
	if tl, ok := data["timeLimit"]; ok {
		q.TimeLimit = intField(map[string]interface{}{"timeLimit": tl}, "timeLimit", 0)
	}
	if exp, ok := data["explanation"].(string); ok {
		q.Explanation = exp
	}

	switch q.Type {
	case quiz.TypeSingle:
		q.CorrectSingle = intField(data, "correct", 0)
	case quiz.TypeMultiple:
		q.CorrectSet = map[int]bool{}
		switch c := data["correct"].(type) {
		case []interface{}:
			for _, v := range c {
				if f, ok := v.(float64); ok {
					q.CorrectSet[int(f)] = true
				}
			}
		}
	case quiz.TypeText:
		q.TextAnswer = stringField(data, "textAnswer")
	}
	return q
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func intField(data map[string]interface{}, key string, def int) int {
	switch v := data[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func (g *FirestoreGateway) CodeExists(ctx context.Context, code string) (bool, error) {
	docs := g.client.Collection("games").Where("code", "==", code).Limit(1).Documents(ctx)
	defer docs.Stop()
	_, err := docs.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: code lookup: %v", ErrStoreUnavailable, err)
	}
	return true, nil
}

func (g *FirestoreGateway) CreateGame(ctx context.Context, hostID, groupID, code, mode, quizID string) (string, error) {
	ref, _, err := g.client.Collection("games").Add(ctx, map[string]interface{}{
		"host":          hostID,
		"players":       []string{},
		"group_id":      groupID,
		"active":        true,
		"game_finished": false,
		"code":          code,
		"type":          mode,
		"quiz_id":       quizID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: create game: %v", ErrStoreUnavailable, err)
	}
	return ref.ID, nil
}

func (g *FirestoreGateway) AppendPlayer(ctx context.Context, gameID, userID string) {
	_, err := g.client.Collection("games").Doc(gameID).Update(ctx, []firestore.Update{
		{Path: "players", Value: firestore.ArrayUnion(userID)},
	})
	if err != nil {
		g.log.WithError(err).Warnf("append_player failed for game %s user %s", gameID, userID)
	}
}

func (g *FirestoreGateway) FinalizeGame(ctx context.Context, gameID string, leaderboard []LeaderboardEntry, mode string) {
	_, err := g.client.Collection("games").Doc(gameID).Update(ctx, []firestore.Update{
		{Path: "active", Value: false},
		{Path: "game_finished", Value: true},
		{Path: "finished_at", Value: firestore.ServerTimestamp},
		{Path: "final_results", Value: leaderboard},
		{Path: "game_mode", Value: mode},
	})
	if err != nil {
		g.log.WithError(err).Warnf("finalize_game failed for game %s", gameID)
	}
}

func (g *FirestoreGateway) WriteResult(ctx context.Context, gameID, userID string, result PlayerResult) {
	_, err := g.client.Collection("games").Doc(gameID).Collection("results").Doc(userID).Set(ctx, result)
	if err != nil {
		g.log.WithError(err).Warnf("write_result failed for game %s user %s", gameID, userID)
	}
}

func (g *FirestoreGateway) DeleteGame(ctx context.Context, gameID string) {
	deleteCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resultsRef := g.client.Collection("games").Doc(gameID).Collection("results")
	iter := resultsRef.Documents(deleteCtx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			g.log.WithError(err).Warnf("delete_game: listing results for %s", gameID)
			break
		}
		if _, err := doc.Ref.Delete(deleteCtx); err != nil {
			g.log.WithError(err).Warnf("delete_game: deleting result %s for %s", doc.Ref.ID, gameID)
		}
	}

	if _, err := g.client.Collection("games").Doc(gameID).Delete(deleteCtx); err != nil {
		g.log.WithError(err).Warnf("delete_game failed for %s", gameID)
	}
}
