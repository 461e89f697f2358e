package handlers

import (
	"net/http"
)

func (suite *HandlersTestSuite) TestNotificationLifecycle() {
	alice, bob, carol := suite.createUser(), suite.createUser(), suite.createUser()
	suite.request(http.MethodPost, "/api/v1/user/followorunfollow/"+alice.ID, bob, nil)
	suite.request(http.MethodPost, "/api/v1/user/followorunfollow/"+alice.ID, carol, nil)

	w := suite.request(http.MethodGet, "/api/v1/notification", alice, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	var list struct {
		Notifications []NotificationEvent `json:"notifications"`
		Unread        int                 `json:"unread"`
	}
	suite.decode(w, &list)
	suite.Require().Len(list.Notifications, 2)
	suite.Equal(2, list.Unread)
	suite.False(list.Notifications[0].CreatedAt.Before(list.Notifications[1].CreatedAt), "newest first")
	suite.NotEmpty(list.Notifications[0].Sender.Username)

	w = suite.request(http.MethodPut, "/api/v1/notification/read", alice, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"updated":2`)

	w = suite.request(http.MethodGet, "/api/v1/notification", alice, nil)
	suite.decode(w, &list)
	suite.Zero(list.Unread)

	// another user's list is untouched
	w = suite.request(http.MethodGet, "/api/v1/notification", bob, nil)
	suite.decode(w, &list)
	suite.Empty(list.Notifications)

	w = suite.request(http.MethodDelete, "/api/v1/notification", alice, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	w = suite.request(http.MethodGet, "/api/v1/notification", alice, nil)
	suite.decode(w, &list)
	suite.Empty(list.Notifications)
}
