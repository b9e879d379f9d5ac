package store

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"student_achievements/backend/internal/shared"
)

const queryTimeout = 5 * time.Second

// NewMongoStore builds the three accessors over db
func NewMongoStore(db *mongo.Database) *Store {
	return &Store{
		Students:     &MongoStudents{col: db.Collection(StudentsCollection)},
		Admins:       &MongoAdmins{col: db.Collection(AdminsCollection)},
		Achievements: &MongoAchievements{col: db.Collection(AchievementsCollection)},
	}
}

// EnsureIndexes creates the unique identity indexes and the owner lookup index
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	unique := options.Index().SetUnique(true)

	if _, err := db.Collection(StudentsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "rollNumber", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "batch", Value: 1}}},
	}); err != nil {
		return err
	}

	if _, err := db.Collection(AdminsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "emp_no", Value: 1}}, Options: unique},
	}); err != nil {
		return err
	}

	_, err := db.Collection(AchievementsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "studentId", Value: 1}, {Key: "category", Value: 1}},
	})
	return err
}

// containsFold matches term anywhere in a field, ignoring case. The term is
// quoted so user input is never interpreted as a pattern.
func containsFold(term string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
}

func storeError(err error, notFound string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return shared.NewNotFoundError(notFound)
	}
	if mongo.IsDuplicateKeyError(err) {
		return shared.NewConflictError("a record with the same identity already exists")
	}
	return shared.NewInternalError(err)
}

// ============================================================================
// Students
// ============================================================================

// MongoStudents implements StudentStore
type MongoStudents struct {
	col *mongo.Collection
}

func (m *MongoStudents) Find(ctx context.Context, q StudentQuery) ([]shared.Student, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{}
	if q.Batch != "" {
		filter["batch"] = q.Batch
	}

	cgpa := bson.M{}
	if q.CGPAMin != nil {
		cgpa["$gte"] = *q.CGPAMin
	}
	if q.CGPAMax != nil {
		cgpa["$lte"] = *q.CGPAMax
	}
	if len(cgpa) > 0 {
		filter["cgpa"] = cgpa
	}

	if q.Search != "" {
		re := containsFold(q.Search)
		or := []bson.M{
			{"name": re},
			{"email": re},
			{"rollNumber": re},
		}
		if len(q.AlsoIDs) > 0 {
			or = append(or, bson.M{"_id": bson.M{"$in": q.AlsoIDs}})
		}
		filter["$or"] = or
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.col.Find(queryCtx, filter, opts)
	if err != nil {
		return nil, shared.NewInternalError(err)
	}
	defer cursor.Close(queryCtx)

	students := []shared.Student{}
	if err := cursor.All(queryCtx, &students); err != nil {
		return nil, shared.NewInternalError(err)
	}
	return students, nil
}

func (m *MongoStudents) findOne(ctx context.Context, filter bson.M) (*shared.Student, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var student shared.Student
	if err := m.col.FindOne(queryCtx, filter).Decode(&student); err != nil {
		return nil, storeError(err, "student not found")
	}
	return &student, nil
}

func (m *MongoStudents) FindByID(ctx context.Context, id string) (*shared.Student, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *MongoStudents) FindByEmail(ctx context.Context, email string) (*shared.Student, error) {
	return m.findOne(ctx, bson.M{"email": email})
}

func (m *MongoStudents) FindByRollNumber(ctx context.Context, roll string) (*shared.Student, error) {
	return m.findOne(ctx, bson.M{"rollNumber": roll})
}

func (m *MongoStudents) FindByEmailOrRoll(ctx context.Context, email, roll string) (*shared.Student, error) {
	return m.findOne(ctx, bson.M{
		"$or": []bson.M{
			{"email": email},
			{"rollNumber": roll},
		},
	})
}

func (m *MongoStudents) Insert(ctx context.Context, s *shared.Student) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := m.col.InsertOne(queryCtx, s); err != nil {
		return storeError(err, "student not found")
	}
	return nil
}

func (m *MongoStudents) update(ctx context.Context, id string, update bson.M) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := m.col.UpdateOne(queryCtx, bson.M{"_id": id}, update)
	if err != nil {
		return shared.NewInternalError(err)
	}
	if result.MatchedCount == 0 {
		return shared.NewNotFoundError("student not found")
	}
	return nil
}

func (m *MongoStudents) UpdateCGPA(ctx context.Context, id string, cgpa float64) error {
	return m.update(ctx, id, bson.M{"$set": bson.M{"cgpa": cgpa}})
}

func (m *MongoStudents) SetPasswordHash(ctx context.Context, id, hash string) error {
	return m.update(ctx, id, bson.M{"$set": bson.M{"password": hash}})
}

func (m *MongoStudents) SetProfilePhoto(ctx context.Context, id, filename string) error {
	return m.update(ctx, id, bson.M{"$set": bson.M{"profilePhoto": filename}})
}

// SetFlag only ever sets the flag to true, so repeated calls are no-ops
func (m *MongoStudents) SetFlag(ctx context.Context, id string, flag shared.StudentFlag) error {
	return m.update(ctx, id, bson.M{"$set": bson.M{string(flag): true}})
}

func (m *MongoStudents) SetOTP(ctx context.Context, id, code string, expiry time.Time) error {
	return m.update(ctx, id, bson.M{"$set": bson.M{"otp": code, "otpExpiry": expiry}})
}

func (m *MongoStudents) ConsumeOTP(ctx context.Context, roll, code string, now time.Time) (*shared.Student, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{
		"rollNumber": roll,
		"otp":        code,
		"otpExpiry":  bson.M{"$gt": now},
	}
	update := bson.M{"$unset": bson.M{"otp": "", "otpExpiry": ""}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var student shared.Student
	if err := m.col.FindOneAndUpdate(queryCtx, filter, update, opts).Decode(&student); err != nil {
		return nil, storeError(err, "invalid or expired code")
	}
	return &student, nil
}

// ============================================================================
// Admins
// ============================================================================

// MongoAdmins implements AdminStore
type MongoAdmins struct {
	col *mongo.Collection
}

func (m *MongoAdmins) findOne(ctx context.Context, filter bson.M) (*shared.Admin, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var admin shared.Admin
	if err := m.col.FindOne(queryCtx, filter).Decode(&admin); err != nil {
		return nil, storeError(err, "admin not found")
	}
	return &admin, nil
}

func (m *MongoAdmins) FindByID(ctx context.Context, id string) (*shared.Admin, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *MongoAdmins) FindByEmail(ctx context.Context, email string) (*shared.Admin, error) {
	return m.findOne(ctx, bson.M{"email": email})
}

func (m *MongoAdmins) FindByEmailOrEmpNo(ctx context.Context, email, empNo string) (*shared.Admin, error) {
	return m.findOne(ctx, bson.M{
		"$or": []bson.M{
			{"email": email},
			{"emp_no": empNo},
		},
	})
}

func (m *MongoAdmins) Insert(ctx context.Context, a *shared.Admin) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := m.col.InsertOne(queryCtx, a); err != nil {
		return storeError(err, "admin not found")
	}
	return nil
}

func (m *MongoAdmins) update(ctx context.Context, id string, update bson.M) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := m.col.UpdateOne(queryCtx, bson.M{"_id": id}, update)
	if err != nil {
		return shared.NewInternalError(err)
	}
	if result.MatchedCount == 0 {
		return shared.NewNotFoundError("admin not found")
	}
	return nil
}

func (m *MongoAdmins) SetPasswordHash(ctx context.Context, id, hash string) error {
	return m.update(ctx, id, bson.M{"$set": bson.M{"password": hash}})
}

func (m *MongoAdmins) SetOTP(ctx context.Context, id, code string, expiry time.Time) error {
	return m.update(ctx, id, bson.M{"$set": bson.M{"otp": code, "otpExpiry": expiry}})
}

func (m *MongoAdmins) ConsumeOTP(ctx context.Context, email, code string, now time.Time) (*shared.Admin, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{
		"email":     email,
		"otp":       code,
		"otpExpiry": bson.M{"$gt": now},
	}
	update := bson.M{"$unset": bson.M{"otp": "", "otpExpiry": ""}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var admin shared.Admin
	if err := m.col.FindOneAndUpdate(queryCtx, filter, update, opts).Decode(&admin); err != nil {
		return nil, storeError(err, "invalid or expired code")
	}
	return &admin, nil
}

// ============================================================================
// Achievements
// ============================================================================

// MongoAchievements implements AchievementStore
type MongoAchievements struct {
	col *mongo.Collection
}

// withoutData hides inline attachment bytes
var withoutData = bson.M{"file.data": 0}

func (m *MongoAchievements) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]shared.Achievement, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cursor, err := m.col.Find(queryCtx, filter, opts)
	if err != nil {
		return nil, shared.NewInternalError(err)
	}
	defer cursor.Close(queryCtx)

	achievements := []shared.Achievement{}
	if err := cursor.All(queryCtx, &achievements); err != nil {
		return nil, shared.NewInternalError(err)
	}
	return achievements, nil
}

func (m *MongoAchievements) FindByStudent(ctx context.Context, studentID string, withData bool) ([]shared.Achievement, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	if !withData {
		opts.SetProjection(withoutData)
	}
	return m.find(ctx, bson.M{"studentId": studentID}, opts)
}

func (m *MongoAchievements) FindByStudentAndCategory(ctx context.Context, studentID string, category shared.Category) ([]shared.Achievement, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetProjection(withoutData)
	return m.find(ctx, bson.M{"studentId": studentID, "category": category}, opts)
}

func (m *MongoAchievements) FindByID(ctx context.Context, id string, withData bool) (*shared.Achievement, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.FindOne()
	if !withData {
		opts.SetProjection(withoutData)
	}

	var achievement shared.Achievement
	if err := m.col.FindOne(queryCtx, bson.M{"_id": id}, opts).Decode(&achievement); err != nil {
		return nil, storeError(err, "achievement not found")
	}
	return &achievement, nil
}

func (m *MongoAchievements) OwnersMatching(ctx context.Context, term string) ([]string, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	re := containsFold(term)
	filter := bson.M{
		"$or": []bson.M{
			{"title": re},
			{"description": re},
			{"shortDescription": re},
			{"companyName": re},
		},
	}

	values, err := m.col.Distinct(queryCtx, "studentId", filter)
	if err != nil {
		return nil, shared.NewInternalError(err)
	}

	owners := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			owners = append(owners, id)
		}
	}
	return owners, nil
}

func (m *MongoAchievements) Insert(ctx context.Context, a *shared.Achievement) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := m.col.InsertOne(queryCtx, a); err != nil {
		return storeError(err, "achievement not found")
	}
	return nil
}

func (m *MongoAchievements) Update(ctx context.Context, a *shared.Achievement) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	set := bson.M{
		"category":         a.Category,
		"title":            a.Title,
		"description":      a.Description,
		"shortDescription": a.ShortDescription,
		"companyName":      a.CompanyName,
		"fromDate":         a.FromDate,
		"updatedAt":        a.UpdatedAt,
	}
	update := bson.M{}

	if a.ToDate != nil {
		set["toDate"] = *a.ToDate
	} else {
		update["$unset"] = bson.M{"toDate": ""}
	}
	if a.File != nil {
		set["file"] = a.File
		set["fileType"] = a.FileType
	}
	update["$set"] = set

	result, err := m.col.UpdateOne(queryCtx, bson.M{"_id": a.ID}, update)
	if err != nil {
		return shared.NewInternalError(err)
	}
	if result.MatchedCount == 0 {
		return shared.NewNotFoundError("achievement not found")
	}
	return nil
}

func (m *MongoAchievements) Delete(ctx context.Context, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := m.col.DeleteOne(queryCtx, bson.M{"_id": id})
	if err != nil {
		return shared.NewInternalError(err)
	}
	if result.DeletedCount == 0 {
		return shared.NewNotFoundError("achievement not found")
	}
	return nil
}
