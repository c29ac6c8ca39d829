package bot

import (
	"fmt"
	"html"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/vidvault/internal/domain"
)

// Callback tokens carried by inline buttons.
const (
	tokMenuCategories       = "menu_categories"
	tokMenuManageVideos     = "menu_manage_videos"
	tokMenuManageCategories = "menu_manage_categories"
	tokBackToMain           = "back_to_main"
	tokCategoryAdd          = "category_add"
	tokCategoryDelete       = "category_delete"
	tokBackToCategories     = "back_to_categories"
	tokVideoAdd             = "video_add"
	tokVideoDelete          = "video_delete"
	tokBackToVideos         = "back_to_videos"

	prefixDeleteCategory      = "delete_cat_"
	prefixConfirmDeleteCat    = "confirm_delete_"
	prefixDeleteVideoCategory = "delete_video_cat_"
	prefixDeleteVideo         = "delete_video_"
	prefixConfirmDeleteVideo  = "confirm_delete_video_"
	prefixSelectCategory      = "select_category_"
	prefixBrowseCategory      = "browse_cat_"
	prefixPlayVideo           = "play_video_"
)

// Messages answered as callback toasts or sent as plain text.
const (
	msgAccessExpired  = "Access expired. Please restart the bot with /start."
	msgVideoMissing   = "Video not found. It might have been deleted."
	msgNotAFile       = "This is a link, not a file."
	msgSendingVideo   = "Sending video..."
	msgFileMissing    = "Video file not found on the server."
	msgWrongPassword  = "❌ Incorrect password. Please try again or contact the administrator."
	msgTooManyTries   = "⏳ Too many attempts. Please wait a minute and try again."
	msgBrowseFinished = "✅ All videos in this category have been sent."
)

func withID(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

func btn(label, data string) Button {
	return Button{Label: label, Data: data}
}

func row(buttons ...Button) []Button {
	return buttons
}

func single(label, data string) Keyboard {
	return Keyboard{row(btn(label, data))}
}

func title(emoji, heading, body string) string {
	return emoji + " <b>" + heading + "</b>\n\n" + body
}

func esc(s string) string {
	return html.EscapeString(s)
}

// ============================================================================
// Main menu and access
// ============================================================================

func mainMenuView() View {
	return View{
		Text:     title("📋", "Main Menu", "Please select an option:"),
		Keyboard: Keyboard{
			row(btn("📁 Categories", tokMenuCategories)),
			row(btn("🎬 Manage Videos", tokMenuManageVideos)),
			row(btn("🗂 Manage Categories", tokMenuManageCategories)),
		},
	}
}

func welcomeView() View {
	return View{Text: "Welcome to the Video Archive Bot!\n\nPlease enter the access password to continue."}
}

func passwordAcceptedView(d time.Duration) View {
	return View{Text: "✅ Password correct! You now have access for " + formatDuration(d) + "."}
}

func accessExpiredView() View {
	return View{Text: msgAccessExpired}
}

func helpView() View {
	return View{Text: title("ℹ️", "Help",
		"/start - open the main menu\n"+
			"/cancel - abandon the current action\n"+
			"/help - show this message")}
}

func genericErrorView(back string) View {
	v := View{Text: title("❌", "Error", "Something went wrong. Please try again later.")}
	if back != "" {
		v.Keyboard = single("🔙 Back", back)
	}
	return v
}

// formatDuration renders whole hours or minutes, falling back to Go's format.
func formatDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return strconv.FormatInt(n, 10) + " " + unit + "s"
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

// ============================================================================
// Category management
// ============================================================================

func manageCategoriesView() View {
	return View{
		Text:     title("🗂", "Manage Categories", "Please select an action:"),
		Keyboard: Keyboard{
			row(btn("➕ Add Category", tokCategoryAdd)),
			row(btn("➖ Delete Category", tokCategoryDelete)),
			row(btn("🔙 Back to Main Menu", tokBackToMain)),
		},
	}
}

func addCategoryView() View {
	return View{
		Text:     title("➕", "Add Category", "Please send me the name of the new category, or click Cancel."),
		Keyboard: single("Cancel", tokBackToCategories),
	}
}

func invalidCategoryNameView() View {
	return View{
		Text:     title("❌", "Invalid Name", "Category name cannot be empty. Please try again."),
		Keyboard: single("Cancel", tokBackToCategories),
	}
}

func categoryAddedView(name string) View {
	return View{
		Text:     title("✅", "Category Added", fmt.Sprintf("The category '%s' has been successfully added!", esc(name))),
		Keyboard: single("🔙 Back", tokMenuManageCategories),
	}
}

func categoryExistsView(name string) View {
	return View{
		Text:     title("❌", "Error", fmt.Sprintf("A category named '%s' already exists. Send another name, or click Cancel.", esc(name))),
		Keyboard: single("Cancel", tokBackToCategories),
	}
}

func categoryPicker(cats []domain.Category, prefix string) Keyboard {
	kb := make(Keyboard, 0, len(cats)+1)
	for _, c := range cats {
		kb = append(kb, row(btn(c.Name, withID(prefix, c.ID))))
	}
	return kb
}

func deleteCategoryPickerView(cats []domain.Category) View {
	if len(cats) == 0 {
		return View{
			Text:     title("❌", "No categories found", "There are no categories to delete."),
			Keyboard: single("🔙 Back", tokMenuManageCategories),
		}
	}
	kb := categoryPicker(cats, prefixDeleteCategory)
	kb = append(kb, row(btn("Cancel", tokBackToCategories)))
	return View{Text: title("➖", "Delete Category", "Select a category to delete:"), Keyboard: kb}
}

func confirmDeleteCategoryView(c *domain.Category) View {
	return View{
		Text: title("⚠️", "Confirm Deletion", fmt.Sprintf(
			"Are you sure you want to delete the category <b>%s</b>?\n\n⚠️ <b>WARNING:</b> This will also delete all videos in this category!",
			esc(c.Name))),
		Keyboard: Keyboard{
			row(btn("✅ Yes, delete", withID(prefixConfirmDeleteCat, c.ID))),
			row(btn("No, cancel", tokCategoryDelete)),
		},
	}
}

func categoryDeletedView(videos int) View {
	body := "The category and all its videos have been successfully deleted."
	if videos > 0 {
		body = fmt.Sprintf("The category and its %d video(s) have been successfully deleted.", videos)
	}
	return View{
		Text:     title("✅", "Category Deleted", body),
		Keyboard: single("🔙 Back", tokMenuManageCategories),
	}
}

func categoryNotFoundView(back string) View {
	return View{
		Text:     title("❌", "Error", "Category not found. It might have been deleted already."),
		Keyboard: single("🔙 Back", back),
	}
}

// ============================================================================
// Video management
// ============================================================================

func manageVideosView() View {
	return View{
		Text:     title("🎬", "Manage Videos", "Please select an action:"),
		Keyboard: Keyboard{
			row(btn("➕ Add Video", tokVideoAdd)),
			row(btn("➖ Delete Video", tokVideoDelete)),
			row(btn("🔙 Back to Main Menu", tokBackToMain)),
		},
	}
}

func addVideoView() View {
	return View{
		Text:     title("➕", "Add Video", "Please send me the title of the new video, or click Cancel."),
		Keyboard: single("Cancel", tokBackToVideos),
	}
}

func invalidTitleView() View {
	return View{
		Text:     title("❌", "Invalid Title", "Title cannot be empty. Please try again."),
		Keyboard: single("Cancel", tokBackToVideos),
	}
}

func mediaPromptView(videoTitle string) View {
	return View{
		Text: title("🎬", "Video Upload", fmt.Sprintf("Title: <b>%s</b>\n\n", esc(videoTitle))+
			"Please send me one of the following:\n\n"+
			"1️⃣ <b>Video File</b>: Upload a video file from your device\n\n"+
			"2️⃣ <b>Video Link</b>: Send a link to a video from YouTube, Vimeo, or similar video platforms"),
		Keyboard: single("Cancel", tokBackToVideos),
	}
}

func cancelable(v View) View {
	v.Keyboard = single("Cancel", tokBackToVideos)
	return v
}

func invalidURLView() View {
	return cancelable(View{Text: title("❌", "Invalid URL", "Please send a valid video URL from platforms like YouTube, Vimeo, etc.")})
}

func invalidLinkView() View {
	return cancelable(View{Text: title("❌", "Invalid Link", "Could not extract a valid URL from the webpage preview.")})
}

func invalidFileView() View {
	return cancelable(View{Text: title("❌", "Invalid File", "Please send a valid video file.")})
}

func unsupportedMediaView() View {
	return cancelable(View{Text: title("❌", "Link Processing Issue",
		"If you're sharing a link, please copy and paste the URL directly in a message instead of using link previews or embedded content.\n\n"+
			"For example, just type or paste: https://www.youtube.com/watch?v=example")})
}

func invalidInputView() View {
	return cancelable(View{Text: title("❌", "Invalid Input", "Please send either a video file or a video link.")})
}

func downloadingView(size int64) View {
	if size > 0 {
		return View{Text: fmt.Sprintf("📥 Downloading video (%s)... Please wait.", humanize.Bytes(uint64(size)))}
	}
	return View{Text: "📥 Downloading video... Please wait."}
}

func fileTooLargeView(limit int64) View {
	return cancelable(View{Text: title("❌", "File Too Large",
		fmt.Sprintf("Videos up to %s can be uploaded. Send a smaller file or a link instead.", humanize.Bytes(uint64(limit))))})
}

func storageFullView() View {
	return cancelable(View{Text: title("❌", "Storage Full", "The server is running out of disk space. Please send a link instead or try again later.")})
}

func ingestErrorView(err error) View {
	return cancelable(View{Text: title("❌", "Error Saving Video", "Error details: "+esc(err.Error()))})
}

func noCategoriesForVideoView() View {
	return View{
		Text:     title("❌", "No categories found", "Please add a category first."),
		Keyboard: single("🔙 Back", tokMenuManageVideos),
	}
}

func selectCategoryView(cats []domain.Category) View {
	kb := categoryPicker(cats, prefixSelectCategory)
	kb = append(kb, row(btn("Cancel", tokBackToVideos)))
	return View{Text: title("📁", "Select Category", "Please select a category for this video:"), Keyboard: kb}
}

func sessionExpiredView() View {
	return View{
		Text:     title("❌", "Error", "Session expired. Please start over."),
		Keyboard: single("🔙 Back", tokVideoAdd),
	}
}

func videoAddedView(videoTitle string) View {
	return View{
		Text:     title("✅", "Video Added", fmt.Sprintf("The video '%s' has been successfully added!", esc(videoTitle))),
		Keyboard: single("🔙 Back", tokMenuManageVideos),
	}
}

func deleteVideoCategoryPickerView(cats []domain.Category) View {
	if len(cats) == 0 {
		return View{
			Text:     title("❌", "No categories found", "There are no categories with videos to delete."),
			Keyboard: single("🔙 Back", tokMenuManageVideos),
		}
	}
	kb := categoryPicker(cats, prefixDeleteVideoCategory)
	kb = append(kb, row(btn("Cancel", tokBackToVideos)))
	return View{Text: title("➖", "Delete Video", "Select a category first:"), Keyboard: kb}
}

func deleteVideoPickerView(videos []domain.Video) View {
	if len(videos) == 0 {
		return View{
			Text:     title("❌", "No videos found", "There are no videos in this category."),
			Keyboard: single("🔙 Back", tokVideoDelete),
		}
	}
	kb := make(Keyboard, 0, len(videos)+1)
	for _, v := range videos {
		kb = append(kb, row(btn(v.Title, withID(prefixDeleteVideo, v.ID))))
	}
	kb = append(kb, row(btn("Cancel", tokVideoDelete)))
	return View{Text: title("➖", "Delete Video", "Select a video to delete:"), Keyboard: kb}
}

func confirmDeleteVideoView(v *domain.Video) View {
	return View{
		Text:     title("⚠️", "Confirm Deletion", fmt.Sprintf("Are you sure you want to delete the video <b>%s</b>?", esc(v.Title))),
		Keyboard: Keyboard{
			row(btn("✅ Yes, delete", withID(prefixConfirmDeleteVideo, v.ID))),
			row(btn("No, cancel", tokVideoDelete)),
		},
	}
}

func videoNotFoundView(back string) View {
	return View{
		Text:     title("❌", "Error", "Video not found. It might have been deleted already."),
		Keyboard: single("🔙 Back", back),
	}
}

func videoDeletedView(videoTitle string) View {
	return View{
		Text:     title("✅", "Video Deleted", fmt.Sprintf("The video '%s' has been successfully deleted.", esc(videoTitle))),
		Keyboard: single("🔙 Back", tokMenuManageVideos),
	}
}

// ============================================================================
// Browsing
// ============================================================================

func browseCategoriesView(cats []domain.Category) View {
	if len(cats) == 0 {
		return View{
			Text:     title("❌", "No Categories", "There are no categories available yet."),
			Keyboard: single("🔙 Back to Main Menu", tokBackToMain),
		}
	}
	kb := categoryPicker(cats, prefixBrowseCategory)
	kb = append(kb, row(btn("🔙 Back to Main Menu", tokBackToMain)))
	return View{Text: title("📁", "Categories", "Select a category to view videos:"), Keyboard: kb}
}

func emptyCategoryView(name string) View {
	return View{
		Text:     title("📁", esc(name), "There are no videos in this category."),
		Keyboard: single("🔙 Back", tokMenuCategories),
	}
}

func sendingVideosView(name string, count int) View {
	return View{
		Text:     title("📁", esc(name), fmt.Sprintf("Sending %d video(s) in this category...", count)),
		Keyboard: single("🔙 Back", tokMenuCategories),
	}
}

// fileCardView is the caption and play button of a stored file.
func fileCardView(v domain.Video) View {
	return View{
		Text:     "🎬 <b>" + esc(v.Title) + "</b>",
		Keyboard: single("▶️ View Video", withID(prefixPlayVideo, v.ID)),
	}
}

// linkCardView shows a link with a URL button and no play action.
func linkCardView(v domain.Video) View {
	body := esc(v.Location)
	if p := domain.DetectPlatform(v.Location); p != "" {
		body += "\n" + esc(p)
	}
	return View{
		Text:     "🔗 <b>" + esc(v.Title) + "</b>\n\n" + body,
		Keyboard: Keyboard{row(Button{Label: "🔗 Open Link", URL: v.Location})},
	}
}

func browseFinishedView() View {
	return View{
		Text:     msgBrowseFinished,
		Keyboard: single("⬅️ Return to Main Menu", tokBackToMain),
	}
}
