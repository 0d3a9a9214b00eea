package bbcodify

import "github.com/riverfjs/bbcodify-go/internal/types"

// Exported aliases for the shared descriptor types.
type (
	// Attachment describes a link/photo/video/audio preview embedded in
	// a post body.
	Attachment = types.Attachment
	// AttachedImage is one locally hosted picture referenced by a body.
	AttachedImage = types.AttachedImage
	// ShareAttributes holds the attribute values of a [share] block.
	ShareAttributes = types.ShareAttributes
	// Contact is a directory record for an author identity.
	Contact = types.Contact
	// SiteInfo is the metadata probed from a remote page.
	SiteInfo = types.SiteInfo
	// SiteImage is one preview image advertised by a remote page.
	SiteImage = types.SiteImage
	// ImageInfo is the probed geometry and mime type of a remote image.
	ImageInfo = types.ImageInfo
	// EventDescriptor is a calendar event embedded in a post body.
	EventDescriptor = types.EventDescriptor
)

// ItemHints carries item-level metadata that steers the attachment
// heuristics for a body.
type ItemHints struct {
	// Title is the item title, if the post already has one.
	Title string
	// Plink is the permalink of the item.
	Plink string
	// ObjectType is the activity object type of the item.
	ObjectType string
}

// ObjectTypeImage marks an item whose object is a picture.
const ObjectTypeImage = "http://activitystrea.ms/schema/1.0/image"
