package chat

import "testing"

func searchFixtures() ([]User, []Conversation) {
	users := []User{
		{ID: "1", Username: "alice"},
		{ID: "2", Username: "Bob"},
		{ID: "3", Username: "carol"},
	}

	alice := NewIndividualConversation(users[0])
	bob := NewIndividualConversation(users[1])
	devs := NewGroupConversation("10", "Dev Team", nil)
	devs.Description = "engineering chatter"
	book := NewGroupConversation("11", "book club", nil)

	return users, []Conversation{alice, bob, devs, book}
}

func TestSearchEmptyQueryIdentity(t *testing.T) {
	users, convs := searchFixtures()

	if got := SearchUsers(users, ""); len(got) != len(users) {
		t.Errorf("SearchUsers(\"\") = %d results, want %d", len(got), len(users))
	}
	if got := SearchGroups(convs, ""); len(got) != 2 {
		t.Errorf("SearchGroups(\"\") = %d results, want 2", len(got))
	}
	if got := SearchConversations(convs, ""); len(got) != len(convs) {
		t.Errorf("SearchConversations(\"\") = %d results, want %d", len(got), len(convs))
	}
}

func TestSearchUsersCaseInsensitive(t *testing.T) {
	users, _ := searchFixtures()

	got := SearchUsers(users, "BOB")
	if len(got) != 1 || got[0].Username != "Bob" {
		t.Errorf("SearchUsers(BOB) = %v, want [Bob]", got)
	}
	if got := SearchUsers(users, "zzz"); len(got) != 0 {
		t.Errorf("SearchUsers(zzz) = %v, want none", got)
	}
}

func TestSearchGroupsMatchesNameAndDescription(t *testing.T) {
	_, convs := searchFixtures()

	byName := SearchGroups(convs, "dev")
	if len(byName) != 1 || byName[0].GroupName != "Dev Team" {
		t.Errorf("SearchGroups(dev) = %v", byName)
	}
	byDesc := SearchGroups(convs, "engineering")
	if len(byDesc) != 1 || byDesc[0].GroupName != "Dev Team" {
		t.Errorf("SearchGroups(engineering) = %v", byDesc)
	}
}

func TestSearchConversationsByTitle(t *testing.T) {
	_, convs := searchFixtures()

	got := SearchConversations(convs, "ali")
	if len(got) != 1 || got[0].Title() != "alice" {
		t.Errorf("SearchConversations(ali) = %d results", len(got))
	}
	// Group titles participate too.
	got = SearchConversations(convs, "club")
	if len(got) != 1 || got[0].Title() != "book club" {
		t.Errorf("SearchConversations(club) = %d results", len(got))
	}
}

func TestSearchReturnsCopy(t *testing.T) {
	users, _ := searchFixtures()
	got := SearchUsers(users, "")
	got[0].Username = "mutated"
	if users[0].Username == "mutated" {
		t.Error("SearchUsers returned the backing slice, not a copy")
	}
}
