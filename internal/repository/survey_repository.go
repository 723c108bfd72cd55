package repository

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/bp-reports-api/internal/models"
)

type surveyDocument struct {
	FormID     string `bson:"formId"`
	UpdatedBy  string `bson:"updatedBy"`
	DataObject bson.D `bson:"dataObject"`
}

// SurveyRepository reads survey form submissions from the search index.
type SurveyRepository struct {
	coll *mongo.Collection
}

// NewSurveyRepository constructs the repository over the responses collection.
func NewSurveyRepository(coll *mongo.Collection) *SurveyRepository {
	return &SurveyRepository{coll: coll}
}

// Latest returns the newest submission for a form, or nil when there is none.
func (r *SurveyRepository) Latest(ctx context.Context, formID string) (*models.SurveyResponse, error) {
	responses, err := r.find(ctx, bson.M{"formId": formID}, 1)
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, nil
	}
	return &responses[0], nil
}

// ByUser returns a user's submissions for a form, newest first.
func (r *SurveyRepository) ByUser(ctx context.Context, formID, userID string) ([]models.SurveyResponse, error) {
	return r.find(ctx, bson.M{"formId": formID, "updatedBy": userID}, 0)
}

func (r *SurveyRepository) find(ctx context.Context, filter bson.M, limit int64) ([]models.SurveyResponse, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find survey responses: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	responses := make([]models.SurveyResponse, 0)
	for cursor.Next(ctx) {
		var doc surveyDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode survey response: %w", err)
		}
		responses = append(responses, toSurveyResponse(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate survey responses: %w", err)
	}
	return responses, nil
}

func toSurveyResponse(doc surveyDocument) models.SurveyResponse {
	answers := make([]models.SurveyAnswer, 0, len(doc.DataObject))
	for _, elem := range doc.DataObject {
		answers = append(answers, models.SurveyAnswer{Question: elem.Key, Answer: answerString(elem.Value)})
	}
	return models.SurveyResponse{FormID: doc.FormID, UpdatedBy: doc.UpdatedBy, Answers: answers}
}

func answerString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bson.A:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := answerString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case bson.D:
		raw, err := bson.MarshalExtJSON(t, false, false)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	case primitive.DateTime:
		return t.Time().UTC().Format("2006-01-02T15:04:05Z")
	default:
		return fmt.Sprint(t)
	}
}
