package handlers

import (
	"net/http"

	"github.com/zfogg/snapgram/internal/models"
	"github.com/zfogg/snapgram/internal/websocket"
)

func (suite *HandlersTestSuite) createComment(post *models.Post, author *models.User) *models.Comment {
	comment := &models.Comment{PostID: post.ID, AuthorID: author.ID, Text: "first"}
	suite.Require().NoError(suite.db.Create(comment).Error)
	return comment
}

func (suite *HandlersTestSuite) notificationTypes(userID string) []string {
	var kinds []string
	for _, d := range suite.realtime.to(userID, websocket.EventNotification) {
		kinds = append(kinds, d.payload.(NotificationEvent).Type)
	}
	return kinds
}

func (suite *HandlersTestSuite) TestReplyNotifiesCommentAuthorAndPostOwner() {
	alice, bob, carol := suite.createUser(), suite.createUser(), suite.createUser()
	post := suite.createPost(alice)
	comment := suite.createComment(post, bob)

	w := suite.request(http.MethodPost, "/api/v1/comment/"+comment.ID+"/reply", carol, map[string]string{"text": "agreed"})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	suite.Equal([]string{models.NotificationReply}, suite.notificationTypes(bob.ID))
	suite.Equal([]string{models.NotificationComment}, suite.notificationTypes(alice.ID))
	suite.Empty(suite.notificationTypes(carol.ID))

	var reply models.Comment
	suite.Require().NoError(suite.db.Where("author_id = ?", carol.ID).First(&reply).Error)
	suite.Equal(comment.ID, *reply.ParentID)
	suite.Equal(bob.ID, *reply.ReplyToUserID)
	suite.Equal(post.ID, reply.PostID)
}

func (suite *HandlersTestSuite) TestReplySkipsSelfAndDuplicates() {
	alice, bob := suite.createUser(), suite.createUser()
	post := suite.createPost(alice)

	// alice replies to bob on her own post: only bob hears
	comment := suite.createComment(post, bob)
	w := suite.request(http.MethodPost, "/api/v1/comment/"+comment.ID+"/reply", alice, map[string]string{"text": "hi"})
	suite.Require().Equal(http.StatusCreated, w.Code)
	suite.Len(suite.notificationTypes(bob.ID), 1)
	suite.Empty(suite.notificationTypes(alice.ID))

	// bob replies to himself: only the post owner hears
	w = suite.request(http.MethodPost, "/api/v1/comment/"+comment.ID+"/reply", bob, map[string]string{"text": "also"})
	suite.Require().Equal(http.StatusCreated, w.Code)
	suite.Equal([]string{models.NotificationComment}, suite.notificationTypes(alice.ID))
	suite.Len(suite.notificationTypes(bob.ID), 1)

	// the owner's own comment answered by bob: one notification, not two
	own := suite.createComment(post, alice)
	w = suite.request(http.MethodPost, "/api/v1/comment/"+own.ID+"/reply", bob, map[string]string{"text": "yo"})
	suite.Require().Equal(http.StatusCreated, w.Code)
	suite.Equal([]string{models.NotificationComment, models.NotificationReply}, suite.notificationTypes(alice.ID))
}

func (suite *HandlersTestSuite) TestReplyToReplyStaysOneLevelDeep() {
	alice, bob, carol, dave := suite.createUser(), suite.createUser(), suite.createUser(), suite.createUser()
	post := suite.createPost(alice)
	top := suite.createComment(post, bob)

	suite.request(http.MethodPost, "/api/v1/comment/"+top.ID+"/reply", carol, map[string]string{"text": "one"})
	var carolsReply models.Comment
	suite.Require().NoError(suite.db.Where("author_id = ?", carol.ID).First(&carolsReply).Error)

	w := suite.request(http.MethodPost, "/api/v1/comment/"+carolsReply.ID+"/reply", dave, map[string]string{"text": "two"})
	suite.Require().Equal(http.StatusCreated, w.Code)

	var davesReply models.Comment
	suite.Require().NoError(suite.db.Where("author_id = ?", dave.ID).First(&davesReply).Error)
	suite.Equal(top.ID, *davesReply.ParentID)
	suite.Equal(carol.ID, *davesReply.ReplyToUserID)
	suite.Equal([]string{models.NotificationReply}, suite.notificationTypes(carol.ID))
}

func (suite *HandlersTestSuite) TestReplyValidation() {
	alice := suite.createUser()
	post := suite.createPost(alice)
	comment := suite.createComment(post, alice)

	w := suite.request(http.MethodPost, "/api/v1/comment/"+comment.ID+"/reply", alice, map[string]string{})
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.request(http.MethodPost, "/api/v1/comment/missing/reply", alice, map[string]string{"text": "x"})
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *HandlersTestSuite) TestCommentLikeAndDislike() {
	alice, bob := suite.createUser(), suite.createUser()
	post := suite.createPost(alice)
	comment := suite.createComment(post, alice)

	for i := 0; i < 2; i++ {
		w := suite.request(http.MethodGet, "/api/v1/comment/"+comment.ID+"/like", bob, nil)
		suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	}
	suite.Equal([]string{models.NotificationCommentLike}, suite.notificationTypes(alice.ID))

	w := suite.request(http.MethodGet, "/api/v1/comment/"+comment.ID+"/dislike", bob, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	var likes int64
	suite.db.Model(&models.CommentLike{}).Where("comment_id = ?", comment.ID).Count(&likes)
	suite.Zero(likes)
	suite.Len(suite.notificationTypes(alice.ID), 1)
}
