package handlers

import (
	"net/http"

	"github.com/zfogg/snapgram/internal/auth"
	"github.com/zfogg/snapgram/internal/models"
	"github.com/zfogg/snapgram/internal/websocket"
)

func (suite *HandlersTestSuite) TestRegisterLoginLogout() {
	body := map[string]string{
		"username": "snapper",
		"email":    "snapper@example.com",
		"password": "hunter22",
	}

	w := suite.request(http.MethodPost, "/api/v1/user/register", nil, body)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	suite.NotContains(w.Body.String(), "hunter22")

	w = suite.request(http.MethodPost, "/api/v1/user/register", nil, body)
	suite.Equal(http.StatusConflict, w.Code)

	w = suite.request(http.MethodPost, "/api/v1/user/login", nil, map[string]string{
		"email":    "snapper@example.com",
		"password": "wrong-password",
	})
	suite.Equal(http.StatusUnauthorized, w.Code)

	w = suite.request(http.MethodPost, "/api/v1/user/login", nil, map[string]string{
		"email":    "SNAPPER@example.com",
		"password": "hunter22",
	})
	suite.Require().Equal(http.StatusOK, w.Code)

	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	suite.decode(w, &resp)
	suite.NotEmpty(resp.Token)

	var cookie *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == auth.CookieName {
			cookie = ck
		}
	}
	suite.Require().NotNil(cookie)
	suite.Equal(resp.Token, cookie.Value)
	suite.True(cookie.HttpOnly)

	userID, err := suite.auth.ValidateToken(cookie.Value)
	suite.Require().NoError(err)
	suite.Equal(resp.User.ID, userID)

	w = suite.request(http.MethodGet, "/api/v1/user/logout", nil, nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Header().Get("Set-Cookie"), auth.CookieName+"=;")
}

func (suite *HandlersTestSuite) TestRegisterValidation() {
	w := suite.request(http.MethodPost, "/api/v1/user/register", nil, map[string]string{
		"username": "ab",
		"email":    "not-an-email",
		"password": "x",
	})
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *HandlersTestSuite) TestFollowNotifiesTarget() {
	alice, bob := suite.createUser(), suite.createUser()

	// the notification row must exist before the event goes out
	suite.realtime.onDeliver = func(d delivery) {
		suite.Equal(int64(1), suite.notificationCount(d.userID, models.NotificationFollow))
	}

	w := suite.request(http.MethodPost, "/api/v1/user/followorunfollow/"+bob.ID, alice, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Contains(w.Body.String(), `"following":true`)

	sent := suite.realtime.to(bob.ID, websocket.EventNotification)
	suite.Require().Len(sent, 1)
	ev, ok := sent[0].payload.(NotificationEvent)
	suite.Require().True(ok)
	suite.Equal(models.NotificationFollow, ev.Type)
	suite.Equal(alice.ID, ev.Sender.ID)
	suite.Equal(alice.Username, ev.Sender.Username)

	suite.realtime.onDeliver = nil

	// toggling again unfollows without another event
	w = suite.request(http.MethodPost, "/api/v1/user/followorunfollow/"+bob.ID, alice, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"following":false`)
	suite.Len(suite.realtime.to(bob.ID, websocket.EventNotification), 1)

	var edges int64
	suite.db.Model(&models.Follow{}).Count(&edges)
	suite.Zero(edges)
}

func (suite *HandlersTestSuite) TestFollowRejectsSelfAndUnknown() {
	alice := suite.createUser()

	w := suite.request(http.MethodPost, "/api/v1/user/followorunfollow/"+alice.ID, alice, nil)
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.request(http.MethodPost, "/api/v1/user/followorunfollow/missing", alice, nil)
	suite.Equal(http.StatusNotFound, w.Code)
	suite.Zero(suite.realtime.count())
}

func (suite *HandlersTestSuite) TestProfileReportsPresence() {
	alice, bob := suite.createUser(), suite.createUser()
	suite.realtime.setOnline(bob.ID)
	suite.request(http.MethodPost, "/api/v1/user/followorunfollow/"+bob.ID, alice, nil)

	w := suite.request(http.MethodGet, "/api/v1/user/"+bob.ID+"/profile", alice, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	var resp struct {
		FollowerCount int64 `json:"follower_count"`
		IsFollowing   bool  `json:"is_following"`
		IsOnline      bool  `json:"is_online"`
	}
	suite.decode(w, &resp)
	suite.Equal(int64(1), resp.FollowerCount)
	suite.True(resp.IsFollowing)
	suite.True(resp.IsOnline)

	w = suite.request(http.MethodGet, "/api/v1/user/"+alice.ID+"/profile", bob, nil)
	suite.Contains(w.Body.String(), `"is_online":false`)
}
