package handlers

import (
	"net/http"

	"github.com/zfogg/snapgram/internal/models"
	"github.com/zfogg/snapgram/internal/websocket"
)

func (suite *HandlersTestSuite) TestAddPost() {
	alice := suite.createUser()

	w := suite.request(http.MethodPost, "/api/v1/post/addpost", alice, map[string]string{"caption": "sunset"})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Post models.Post `json:"post"`
	}
	suite.decode(w, &resp)
	suite.Equal(alice.ID, resp.Post.AuthorID)
	suite.NotEmpty(resp.Post.ID)

	w = suite.request(http.MethodPost, "/api/v1/post/addpost", alice, map[string]string{"caption": "  "})
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *HandlersTestSuite) TestLikeNotifiesOwnerOnce() {
	alice, bob := suite.createUser(), suite.createUser()
	post := suite.createPost(alice)

	for i := 0; i < 2; i++ {
		w := suite.request(http.MethodGet, "/api/v1/post/"+post.ID+"/like", bob, nil)
		suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	}

	sent := suite.realtime.to(alice.ID, websocket.EventNotification)
	suite.Require().Len(sent, 1)
	ev := sent[0].payload.(NotificationEvent)
	suite.Equal(models.NotificationLike, ev.Type)
	suite.Equal(post.ID, *ev.PostID)
	suite.Equal(int64(1), suite.notificationCount(alice.ID, models.NotificationLike))

	var stored models.Post
	suite.Require().NoError(suite.db.First(&stored, "id = ?", post.ID).Error)
	suite.Equal(1, stored.LikeCount)
}

func (suite *HandlersTestSuite) TestLikeOwnPostIsSilent() {
	alice := suite.createUser()
	post := suite.createPost(alice)

	w := suite.request(http.MethodGet, "/api/v1/post/"+post.ID+"/like", alice, nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Zero(suite.realtime.count())
	suite.Zero(suite.notificationCount(alice.ID, models.NotificationLike))
}

func (suite *HandlersTestSuite) TestLikeMissingPost() {
	alice := suite.createUser()
	w := suite.request(http.MethodGet, "/api/v1/post/nope/like", alice, nil)
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *HandlersTestSuite) TestDislikeSendsTransientNotice() {
	alice, bob := suite.createUser(), suite.createUser()
	post := suite.createPost(alice)
	suite.request(http.MethodGet, "/api/v1/post/"+post.ID+"/like", bob, nil)

	w := suite.request(http.MethodGet, "/api/v1/post/"+post.ID+"/dislike", bob, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	sent := suite.realtime.to(alice.ID, websocket.EventNotification)
	suite.Require().Len(sent, 2)
	ev := sent[1].payload.(NotificationEvent)
	suite.Equal(models.NotificationDislike, ev.Type)
	suite.Equal(bob.ID, ev.Sender.ID)
	suite.Empty(ev.ID, "a dislike is never stored")
	suite.Zero(suite.notificationCount(alice.ID, models.NotificationDislike))

	var stored models.Post
	suite.Require().NoError(suite.db.First(&stored, "id = ?", post.ID).Error)
	suite.Zero(stored.LikeCount)

	// disliking a post that was not liked sends nothing
	suite.request(http.MethodGet, "/api/v1/post/"+post.ID+"/dislike", bob, nil)
	suite.Len(suite.realtime.to(alice.ID, websocket.EventNotification), 2)
}

func (suite *HandlersTestSuite) TestCommentNotifiesOwner() {
	alice, bob := suite.createUser(), suite.createUser()
	post := suite.createPost(alice)

	w := suite.request(http.MethodPost, "/api/v1/post/"+post.ID+"/comment", bob, map[string]string{"text": "nice"})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	sent := suite.realtime.to(alice.ID, websocket.EventNotification)
	suite.Require().Len(sent, 1)
	ev := sent[0].payload.(NotificationEvent)
	suite.Equal(models.NotificationComment, ev.Type)
	suite.NotNil(ev.CommentID)

	w = suite.request(http.MethodPost, "/api/v1/post/"+post.ID+"/comment", alice, map[string]string{"text": "thanks"})
	suite.Require().Equal(http.StatusCreated, w.Code)
	suite.Len(suite.realtime.to(alice.ID, websocket.EventNotification), 1)

	w = suite.request(http.MethodPost, "/api/v1/post/"+post.ID+"/comment", bob, map[string]string{"text": ""})
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.request(http.MethodGet, "/api/v1/post/"+post.ID+"/comment/all", bob, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		Comments []models.Comment `json:"comments"`
	}
	suite.decode(w, &resp)
	suite.Len(resp.Comments, 2)
}
