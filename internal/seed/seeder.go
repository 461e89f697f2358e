// Package seed fills a database with users, posts, comments, follows and
// conversations for local development and end-to-end tests.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/zfogg/snapgram/internal/auth"
	"github.com/zfogg/snapgram/internal/logger"
	"github.com/zfogg/snapgram/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Password is the password every seeded account gets
const Password = "password123"

// seedDomain marks seeded accounts so Clean can find them
const seedDomain = "@example.com"

// Counts controls how much data SeedDev creates
type Counts struct {
	Users         int
	PostsPerUser  int
	Comments      int
	Likes         int
	Follows       int
	Conversations int
}

// DefaultCounts is the development data set
var DefaultCounts = Counts{
	Users:         50,
	PostsPerUser:  3,
	Comments:      300,
	Likes:         600,
	Follows:       400,
	Conversations: 40,
}

// Seeder handles database seeding operations
type Seeder struct {
	db   *gorm.DB
	rand *rand.Rand
	hash string
}

// NewSeeder creates a new seeder instance. A zero seed picks one from the clock.
func NewSeeder(db *gorm.DB, seed int64) *Seeder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	_ = gofakeit.Seed(seed)
	return &Seeder{db: db, rand: rand.New(rand.NewSource(seed))}
}

// SeedDev seeds the development database with realistic data
func (s *Seeder) SeedDev(ctx context.Context, counts Counts) error {
	db := s.db.WithContext(ctx)

	logger.Log.Info("Creating users...", zap.Int("count", counts.Users))
	users, err := s.seedUsers(db, counts.Users)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}
	if len(users) < 2 {
		return errors.New("need at least two users to seed")
	}

	logger.Log.Info("Creating follows...")
	if err := s.seedFollows(db, users, counts.Follows); err != nil {
		return fmt.Errorf("failed to seed follows: %w", err)
	}

	logger.Log.Info("Creating posts...")
	posts, err := s.seedPosts(db, users, counts.PostsPerUser)
	if err != nil {
		return fmt.Errorf("failed to seed posts: %w", err)
	}

	logger.Log.Info("Creating likes...")
	if err := s.seedLikes(db, users, posts, counts.Likes); err != nil {
		return fmt.Errorf("failed to seed likes: %w", err)
	}

	logger.Log.Info("Creating comments...")
	if err := s.seedComments(db, users, posts, counts.Comments); err != nil {
		return fmt.Errorf("failed to seed comments: %w", err)
	}

	logger.Log.Info("Creating conversations...")
	if err := s.seedConversations(db, users, counts.Conversations); err != nil {
		return fmt.Errorf("failed to seed conversations: %w", err)
	}
	return nil
}

// SeedTest seeds a fixed set of accounts with a little content. Running it
// twice reuses the accounts that already exist.
func (s *Seeder) SeedTest(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	names := []string{"alice", "bob", "charlie", "diana", "eve"}
	users := make([]models.User, 0, len(names))
	for _, username := range names {
		var user models.User
		err := db.Where("username = ?", username).First(&user).Error
		if err == nil {
			users = append(users, user)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hash, err := s.passwordHash()
		if err != nil {
			return err
		}
		user = models.User{
			Username:       username,
			Email:          username + seedDomain,
			PasswordHash:   hash,
			ProfilePicture: avatarURL(username),
			Bio:            gofakeit.HipsterSentence(),
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create test user %s: %w", username, err)
		}
		users = append(users, user)
	}

	posts, err := s.seedPosts(db, users, 1)
	if err != nil {
		return fmt.Errorf("failed to seed posts: %w", err)
	}
	if err := s.seedComments(db, users, posts, 10); err != nil {
		return fmt.Errorf("failed to seed comments: %w", err)
	}

	logger.Log.Info("Seeded test accounts",
		zap.Int("users", len(users)),
		zap.String("password", Password))
	return nil
}

// Clean removes every seeded account and everything that references it
func (s *Seeder) Clean(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	var ids []string
	if err := db.Model(&models.User{}).Where("email LIKE ?", "%"+seedDomain).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var postIDs []string
		if err := tx.Model(&models.Post{}).Where("author_id IN ?", ids).Pluck("id", &postIDs).Error; err != nil {
			return err
		}

		steps := []struct {
			name  string
			query *gorm.DB
			model interface{}
		}{
			{"messages", tx.Where("sender_id IN ? OR receiver_id IN ?", ids, ids), &models.Message{}},
			{"conversations", tx.Where("user_a_id IN ? OR user_b_id IN ?", ids, ids), &models.Conversation{}},
			{"notifications", tx.Where("recipient_id IN ? OR sender_id IN ?", ids, ids), &models.Notification{}},
			{"comment_likes", tx.Where("user_id IN ?", ids), &models.CommentLike{}},
			{"comments", tx.Where("author_id IN ? OR post_id IN ?", ids, nonEmpty(postIDs)), &models.Comment{}},
			{"post_likes", tx.Where("user_id IN ? OR post_id IN ?", ids, nonEmpty(postIDs)), &models.PostLike{}},
			{"posts", tx.Where("author_id IN ?", ids), &models.Post{}},
			{"follows", tx.Where("follower_id IN ? OR following_id IN ?", ids, ids), &models.Follow{}},
			{"users", tx.Where("id IN ?", ids), &models.User{}},
		}
		for _, step := range steps {
			if err := step.query.Delete(step.model).Error; err != nil {
				return fmt.Errorf("failed to clean %s: %w", step.name, err)
			}
		}
		return nil
	})
}

func (s *Seeder) seedUsers(db *gorm.DB, count int) ([]models.User, error) {
	var existing int64
	if err := db.Model(&models.User{}).Where("email LIKE ?", "%"+seedDomain).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing >= int64(count) {
		var users []models.User
		if err := db.Where("email LIKE ?", "%"+seedDomain).Find(&users).Error; err != nil {
			return nil, err
		}
		logger.Log.Info("Found existing users, skipping creation", zap.Int("seed_users", len(users)))
		return users, nil
	}

	hash, err := s.passwordHash()
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, count)
	taken := make(map[string]bool, count)
	for len(users) < count {
		username := strings.ToLower(gofakeit.Username())
		if taken[username] || len(username) < 3 || len(username) > 30 {
			continue
		}
		taken[username] = true
		users = append(users, models.User{
			Username:       username,
			Email:          username + seedDomain,
			PasswordHash:   hash,
			ProfilePicture: avatarURL(username),
			Bio:            gofakeit.HipsterSentence(),
		})
	}

	// existing usernames are skipped rather than failing the whole batch
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&users, 100).Error; err != nil {
		return nil, err
	}

	var created []models.User
	if err := db.Where("email LIKE ?", "%"+seedDomain).Find(&created).Error; err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Seeder) seedFollows(db *gorm.DB, users []models.User, count int) error {
	follows := make([]models.Follow, 0, count)
	seen := make(map[[2]string]bool, count)
	for attempts := 0; len(follows) < count && attempts < count*4; attempts++ {
		a, b := s.pair(users)
		key := [2]string{a.ID, b.ID}
		if seen[key] {
			continue
		}
		seen[key] = true
		follows = append(follows, models.Follow{FollowerID: a.ID, FollowingID: b.ID})
	}
	if len(follows) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&follows, 200).Error
}

func (s *Seeder) seedPosts(db *gorm.DB, users []models.User, perUser int) ([]models.Post, error) {
	posts := make([]models.Post, 0, len(users)*perUser)
	for _, user := range users {
		for i := 0; i < perUser; i++ {
			posts = append(posts, models.Post{
				AuthorID: user.ID,
				Caption:  gofakeit.Sentence(s.rand.Intn(12) + 3),
				ImageURL: fmt.Sprintf("https://picsum.photos/seed/%s/1080/1080", gofakeit.UUID()),
			})
		}
	}
	if len(posts) == 0 {
		return posts, nil
	}
	if err := db.CreateInBatches(&posts, 200).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Seeder) seedLikes(db *gorm.DB, users []models.User, posts []models.Post, count int) error {
	if len(posts) == 0 {
		return nil
	}
	likes := make(map[[2]string]bool, count)
	perPost := make(map[string]int)
	for attempts := 0; len(likes) < count && attempts < count*4; attempts++ {
		post := posts[s.rand.Intn(len(posts))]
		user := users[s.rand.Intn(len(users))]
		key := [2]string{post.ID, user.ID}
		if likes[key] {
			continue
		}
		likes[key] = true
		perPost[post.ID]++
	}

	rows := make([]models.PostLike, 0, len(likes))
	for key := range likes {
		rows = append(rows, models.PostLike{PostID: key[0], UserID: key[1]})
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, 200).Error; err != nil {
			return err
		}
		for postID, n := range perPost {
			if err := tx.Model(&models.Post{}).Where("id = ?", postID).
				UpdateColumn("like_count", gorm.Expr("like_count + ?", n)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Seeder) seedComments(db *gorm.DB, users []models.User, posts []models.Post, count int) error {
	if len(posts) == 0 || count == 0 {
		return nil
	}

	var topLevel []models.Comment
	for i := 0; i < count; i++ {
		author := users[s.rand.Intn(len(users))]

		// roughly a third of comments answer an earlier one
		if len(topLevel) > 0 && s.rand.Intn(3) == 0 {
			parent := topLevel[s.rand.Intn(len(topLevel))]
			reply := models.Comment{
				PostID:        parent.PostID,
				AuthorID:      author.ID,
				ParentID:      &parent.ID,
				ReplyToUserID: &parent.AuthorID,
				Text:          gofakeit.Sentence(s.rand.Intn(10) + 2),
			}
			if err := db.Create(&reply).Error; err != nil {
				return err
			}
			continue
		}

		comment := models.Comment{
			PostID:   posts[s.rand.Intn(len(posts))].ID,
			AuthorID: author.ID,
			Text:     gofakeit.Sentence(s.rand.Intn(10) + 2),
		}
		if err := db.Create(&comment).Error; err != nil {
			return err
		}
		topLevel = append(topLevel, comment)
	}
	return nil
}

func (s *Seeder) seedConversations(db *gorm.DB, users []models.User, count int) error {
	seen := make(map[[2]string]bool, count)
	for attempts := 0; len(seen) < count && attempts < count*4; attempts++ {
		from, to := s.pair(users)
		a, b := models.OrderedPair(from.ID, to.ID)
		if seen[[2]string{a, b}] {
			continue
		}
		seen[[2]string{a, b}] = true

		err := db.Transaction(func(tx *gorm.DB) error {
			var n int64
			if err := tx.Model(&models.Conversation{}).Where("user_a_id = ? AND user_b_id = ?", a, b).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return nil
			}

			conv := models.Conversation{
				UserAID:     a,
				UserBID:     b,
				InitiatorID: from.ID,
				IsRequest:   s.rand.Intn(4) == 0,
			}
			if err := tx.Create(&conv).Error; err != nil {
				return err
			}

			var last models.Message
			at := time.Now().UTC().Add(-time.Duration(s.rand.Intn(72)) * time.Hour)
			for i := 0; i < s.rand.Intn(8)+1; i++ {
				sender, receiver := from, to
				if !conv.IsRequest && i%2 == 1 {
					sender, receiver = to, from
				}
				at = at.Add(time.Duration(s.rand.Intn(30)+1) * time.Minute)
				last = models.Message{
					ConversationID: conv.ID,
					SenderID:       sender.ID,
					ReceiverID:     receiver.ID,
					Text:           gofakeit.Sentence(s.rand.Intn(12) + 1),
					CreatedAt:      at,
				}
				if err := tx.Create(&last).Error; err != nil {
					return err
				}
			}

			return tx.Model(&conv).Updates(map[string]interface{}{
				"last_message":    last.Text,
				"last_message_at": last.CreatedAt,
			}).Error
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// pair picks two distinct users
func (s *Seeder) pair(users []models.User) (models.User, models.User) {
	i := s.rand.Intn(len(users))
	j := s.rand.Intn(len(users) - 1)
	if j >= i {
		j++
	}
	return users[i], users[j]
}

func (s *Seeder) passwordHash() (string, error) {
	if s.hash != "" {
		return s.hash, nil
	}
	hash, err := auth.HashPassword(Password)
	if err != nil {
		return "", err
	}
	s.hash = hash
	return hash, nil
}

func avatarURL(username string) string {
	return fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/png?seed=%s", username)
}

// nonEmpty keeps IN clauses valid when there is nothing to match
func nonEmpty(ids []string) []string {
	if len(ids) == 0 {
		return []string{""}
	}
	return ids
}
