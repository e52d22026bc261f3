package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySingleChat(t *testing.T) {
	c := Classify(SingleMsg)
	assert.Equal(t, KindSingle, c.Kind)
	assert.True(t, c.AssignRecvSeq)
	assert.True(t, c.PersistHistory)
}

func TestClassifyGroupChat(t *testing.T) {
	c := Classify(GroupMsg)
	assert.Equal(t, KindGroup, c.Kind)
	assert.True(t, c.AssignRecvSeq)
	assert.True(t, c.PersistHistory)
}

func TestClassifyGroupAdminDoesNotPersist(t *testing.T) {
	for _, mt := range []MsgType{GroupInvitation, GroupInviteNew, GroupMemberExit, GroupRemoveMember, GroupDismiss, GroupUpdate} {
		c := Classify(mt)
		assert.Equal(t, KindGroup, c.Kind, mt.String())
		assert.False(t, c.PersistHistory, mt.String())
	}
}

func TestClassifyUnknownTypeDefaultsSafely(t *testing.T) {
	c := Classify(MsgType(9999))
	assert.False(t, c.AssignRecvSeq)
	assert.False(t, c.PersistHistory)
}

func TestReusesIncomingID(t *testing.T) {
	reusing := []MsgType{GroupDismissOrExitReceived, GroupInvitationReceived, FriendshipReceived}
	for _, mt := range reusing {
		assert.True(t, mt.ReusesIncomingID(), mt.String())
	}
	assert.False(t, SingleMsg.ReusesIncomingID())
}

func TestParseMsgTypeRoundTrips(t *testing.T) {
	for mt, name := range msgTypeNames {
		parsed, ok := ParseMsgType(name)
		assert.True(t, ok)
		assert.Equal(t, mt, parsed)
	}
	_, ok := ParseMsgType("NotARealType")
	assert.False(t, ok)
}

func TestSessionKeyString(t *testing.T) {
	k := SessionKey{UserID: "u1", Platform: PlatformMobile}
	assert.Contains(t, k.String(), "u1")
}

func TestMsgTypeStringFallback(t *testing.T) {
	assert.Equal(t, "SingleMsg", SingleMsg.String())
	assert.Contains(t, MsgType(-1).String(), "MsgType(")
}
