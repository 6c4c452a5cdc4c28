package service

// IsMember reports whether the signed-in user is on the group's roster.
// Being the creator does not count on its own. False when nobody is signed
// in or the group is not in the collection.
func (c *Coordinator) IsMember(groupID string) bool {
	user := c.ident.User()
	if user == nil {
		return false
	}
	g, ok := c.find(groupID)
	return ok && g.HasMember(user.ID)
}

// IsOwner reports whether the signed-in user created the group.
func (c *Coordinator) IsOwner(groupID string) bool {
	user := c.ident.User()
	if user == nil {
		return false
	}
	g, ok := c.find(groupID)
	return ok && g.CreatedBy.ID == user.ID
}

// Membership is both answers at once, for presentation.
type Membership struct {
	IsMember bool `json:"isMember"`
	IsOwner  bool `json:"isOwner"`
}

// MembershipOf returns IsMember and IsOwner for one group.
func (c *Coordinator) MembershipOf(groupID string) Membership {
	return Membership{IsMember: c.IsMember(groupID), IsOwner: c.IsOwner(groupID)}
}
