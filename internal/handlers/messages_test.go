package handlers

import (
	"net/http"

	"github.com/zfogg/snapgram/internal/models"
	"github.com/zfogg/snapgram/internal/websocket"
)

func (suite *HandlersTestSuite) send(from, to *models.User, text string) int {
	w := suite.request(http.MethodPost, "/api/v1/message/send/"+to.ID, from, map[string]string{"text": text})
	return w.Code
}

func (suite *HandlersTestSuite) conversationBetween(a, b *models.User) *models.Conversation {
	conv, err := findConversation(suite.db, a.ID, b.ID)
	suite.Require().NoError(err)
	suite.Require().NotNil(conv)
	return conv
}

func (suite *HandlersTestSuite) listIDs(as *models.User, path, key string) []string {
	w := suite.request(http.MethodGet, path, as, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var resp map[string][]ConversationSummary
	suite.decode(w, &resp)
	var ids []string
	for _, s := range resp[key] {
		ids = append(ids, s.User.ID)
	}
	return ids
}

func (suite *HandlersTestSuite) TestFirstMessageOpensRequest() {
	alice, bob := suite.createUser(), suite.createUser()

	// the message must be committed before the router sees it
	suite.realtime.onDeliver = func(d delivery) {
		var n int64
		suite.db.Model(&models.Message{}).Count(&n)
		suite.Equal(int64(1), n)
	}
	suite.Require().Equal(http.StatusCreated, suite.send(bob, alice, "hey"))
	suite.realtime.onDeliver = nil

	msgs := suite.realtime.to(alice.ID, websocket.EventNewMessage)
	suite.Require().Len(msgs, 1)
	msg := msgs[0].payload.(NewMessageEvent)
	suite.Equal("hey", msg.Text)
	suite.Equal(bob.ID, msg.SenderInfo.ID)

	convs := suite.realtime.to(alice.ID, websocket.EventNewConversation)
	suite.Require().Len(convs, 1)
	conv := convs[0].payload.(NewConversationEvent)
	suite.True(conv.IsRequest)
	suite.Equal("hey", conv.LastMessage)
	suite.Equal(bob.ID, conv.User.ID)
	suite.Equal(suite.conversationBetween(alice, bob).ID, conv.ConversationID)

	// the second message only produces newMessage
	suite.Require().Equal(http.StatusCreated, suite.send(bob, alice, "you there?"))
	suite.Len(suite.realtime.to(alice.ID, websocket.EventNewMessage), 2)
	suite.Len(suite.realtime.to(alice.ID, websocket.EventNewConversation), 1)
	suite.Empty(suite.realtime.to(bob.ID, websocket.EventNewMessage))

	suite.Equal([]string{bob.ID}, suite.listIDs(alice, "/api/v1/message/requests", "requests"))
	suite.Empty(suite.listIDs(alice, "/api/v1/message/conversations", "conversations"))
	suite.Equal([]string{alice.ID}, suite.listIDs(bob, "/api/v1/message/conversations", "conversations"))
	suite.Empty(suite.listIDs(bob, "/api/v1/message/requests", "requests"))
}

func (suite *HandlersTestSuite) TestMessageFromFollowedUserIsNotRequest() {
	alice, bob := suite.createUser(), suite.createUser()
	suite.request(http.MethodPost, "/api/v1/user/followorunfollow/"+bob.ID, alice, nil)

	suite.Require().Equal(http.StatusCreated, suite.send(bob, alice, "thanks for the follow"))
	conv := suite.realtime.to(alice.ID, websocket.EventNewConversation)[0].payload.(NewConversationEvent)
	suite.False(conv.IsRequest)
	suite.Equal([]string{bob.ID}, suite.listIDs(alice, "/api/v1/message/conversations", "conversations"))
}

func (suite *HandlersTestSuite) TestImageOnlyMessagePreview() {
	alice, bob := suite.createUser(), suite.createUser()

	w := suite.request(http.MethodPost, "/api/v1/message/send/"+alice.ID, bob, map[string]string{
		"image_url": "https://cdn.example.com/a.jpg",
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	conv := suite.realtime.to(alice.ID, websocket.EventNewConversation)[0].payload.(NewConversationEvent)
	suite.Equal(imagePreview, conv.LastMessage)
}

func (suite *HandlersTestSuite) TestSendMessageValidation() {
	alice := suite.createUser()

	w := suite.request(http.MethodPost, "/api/v1/message/send/"+alice.ID, alice, map[string]string{"text": "me"})
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.request(http.MethodPost, "/api/v1/message/send/nobody", alice, map[string]string{"text": "hi"})
	suite.Equal(http.StatusNotFound, w.Code)

	w = suite.request(http.MethodPost, "/api/v1/message/send/nobody", alice, map[string]string{})
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Zero(suite.realtime.count())
}

func (suite *HandlersTestSuite) TestAcceptRequest() {
	alice, bob := suite.createUser(), suite.createUser()
	suite.send(bob, alice, "hey")
	conv := suite.conversationBetween(alice, bob)

	w := suite.request(http.MethodPost, "/api/v1/message/requests/"+conv.ID+"/accept", bob, nil)
	suite.Equal(http.StatusForbidden, w.Code, "the sender cannot accept their own request")

	w = suite.request(http.MethodPost, "/api/v1/message/requests/"+conv.ID+"/accept", alice, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Empty(suite.listIDs(alice, "/api/v1/message/requests", "requests"))
	suite.Equal([]string{bob.ID}, suite.listIDs(alice, "/api/v1/message/conversations", "conversations"))

	outsider := suite.createUser()
	w = suite.request(http.MethodPost, "/api/v1/message/requests/"+conv.ID+"/accept", outsider, nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.request(http.MethodPost, "/api/v1/message/requests/missing/accept", alice, nil)
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *HandlersTestSuite) TestDeclineBlocksAndUnblockRestores() {
	alice, bob := suite.createUser(), suite.createUser()
	suite.send(bob, alice, "hey")
	conv := suite.conversationBetween(alice, bob)

	w := suite.request(http.MethodPost, "/api/v1/message/requests/"+conv.ID+"/decline", alice, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	declined := suite.realtime.to(bob.ID, websocket.EventMessageRequestDeclined)
	suite.Require().Len(declined, 1)
	suite.Equal(websocket.ConversationStatePayload{ConversationID: conv.ID, ActorUserID: alice.ID}, declined[0].payload)

	// bob is blocked, alice is not
	w = suite.request(http.MethodPost, "/api/v1/message/send/"+alice.ID, bob, map[string]string{"text": "please"})
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Contains(w.Body.String(), `"is_declined":true`)
	suite.Len(suite.realtime.to(alice.ID, websocket.EventNewMessage), 1)

	suite.Equal([]string{bob.ID}, suite.listIDs(alice, "/api/v1/message/blocked", "blocked"))
	suite.Empty(suite.listIDs(alice, "/api/v1/message/conversations", "conversations"))

	w = suite.request(http.MethodGet, "/api/v1/message/all/"+alice.ID, bob, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"is_declined":true`)

	// only the decliner can lift it
	w = suite.request(http.MethodPost, "/api/v1/message/blocked/"+conv.ID+"/unblock", bob, nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.request(http.MethodPost, "/api/v1/message/blocked/"+conv.ID+"/unblock", alice, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	unblocked := suite.realtime.to(bob.ID, websocket.EventConversationUnblocked)
	suite.Require().Len(unblocked, 1)
	suite.Equal(websocket.ConversationStatePayload{ConversationID: conv.ID, ActorUserID: alice.ID}, unblocked[0].payload)

	suite.Equal(http.StatusCreated, suite.send(bob, alice, "thanks"))
	suite.Empty(suite.listIDs(alice, "/api/v1/message/blocked", "blocked"))
}

func (suite *HandlersTestSuite) TestGetMessages() {
	alice, bob := suite.createUser(), suite.createUser()

	w := suite.request(http.MethodGet, "/api/v1/message/all/"+bob.ID, alice, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"messages":[]`)

	suite.send(alice, bob, "one")
	suite.send(bob, alice, "two")

	w = suite.request(http.MethodGet, "/api/v1/message/all/"+bob.ID, alice, nil)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	suite.decode(w, &resp)
	suite.Require().Len(resp.Messages, 2)
	suite.Equal("one", resp.Messages[0].Text)
	suite.Equal("two", resp.Messages[1].Text)
}

func (suite *HandlersTestSuite) TestDeliveryOutcomeNeverChangesResponse() {
	alice, bob := suite.createUser(), suite.createUser()

	// offline
	suite.Equal(http.StatusCreated, suite.send(bob, alice, "offline"))

	// online
	suite.realtime.setOnline(alice.ID)
	suite.Equal(http.StatusCreated, suite.send(bob, alice, "online"))

	var n int64
	suite.db.Model(&models.Message{}).Count(&n)
	suite.Equal(int64(2), n)
}
