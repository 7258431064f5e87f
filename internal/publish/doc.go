// Package publish picks one unpublished drawing at random and posts it.
//
// Selection is uniform over every pending image at call time. The image is
// marked published only after the poster acknowledges the post, so a failed
// attempt leaves it eligible for the next run.
package publish
