package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/filevault/internal/client/state"
	"github.com/filevault/internal/models"
)

// run loads the session, executes fn and saves the session whatever the
// outcome.
func run(fn func(ctx context.Context, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := loadSession()
		if err != nil {
			return err
		}
		err = fn(cmd.Context(), s, args)
		if serr := s.save(); serr != nil && err == nil {
			err = serr
		}
		return err
	}
}

func optional(cmd *cobra.Command, flag string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	v, _ := cmd.Flags().GetString(flag)
	return &v
}

var registerCMD = &cobra.Command{
	Use:   "register <name> <email> <password>",
	Short: "create an account and log in",
	Args:  cobra.ExactArgs(3),
	RunE: run(func(ctx context.Context, s *session, args []string) error {
		s.dispatch(state.AuthPending{})
		resp, err := s.client.Register(ctx, args[0], args[1], args[2])
		if err != nil {
			s.dispatch(state.AuthRejected{Error: err.Error()})
			return err
		}
		s.dispatch(state.AuthFulfilled{Email: resp.Email, Token: resp.AccessToken})
		fmt.Println("registered as", resp.Email)
		return nil
	}),
}

var loginCMD = &cobra.Command{
	Use:   "login <email> <password>",
	Short: "log in",
	Args:  cobra.ExactArgs(2),
	RunE: run(func(ctx context.Context, s *session, args []string) error {
		s.dispatch(state.AuthPending{})
		resp, err := s.client.Login(ctx, args[0], args[1])
		if err != nil {
			s.dispatch(state.AuthRejected{Error: err.Error()})
			return err
		}
		s.dispatch(state.AuthFulfilled{Email: resp.Email, Token: resp.AccessToken})
		fmt.Println("logged in as", resp.Email)
		return nil
	}),
}

var logoutCMD = &cobra.Command{
	Use:   "logout",
	Short: "log out and forget the session",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, s *session, args []string) error {
		err := s.client.Logout(ctx)
		s.dispatch(state.LoggedOut{})
		return err
	}),
}

var lsCMD = &cobra.Command{
	Use:   "ls",
	Short: "list files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		folderID := optional(cmd, "folder")

		return run(func(ctx context.Context, s *session, _ []string) error {
			s.dispatch(state.FilesPending{})
			var list []models.File
			err := s.authorized(ctx, func() (err error) {
				list, err = s.client.ListFiles(ctx, typ, folderID)
				return err
			})
			if err != nil {
				s.dispatch(state.FilesRejected{Error: err.Error()})
				return err
			}
			s.dispatch(state.FilesFetched{Files: list})
			printFiles(s.State.Files.Items)
			return nil
		})(cmd, args)
	},
}

var uploadCMD = &cobra.Command{
	Use:   "upload <path>...",
	Short: "upload one or more files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folderID := optional(cmd, "folder")

		return run(func(ctx context.Context, s *session, paths []string) error {
			s.dispatch(state.UploadPending{})
			var resp *models.UploadResponse
			err := s.authorized(ctx, func() (err error) {
				resp, err = s.client.UploadFiles(ctx, folderID, paths...)
				return err
			})
			if err != nil {
				s.dispatch(state.UploadRejected{Error: err.Error()})
				return err
			}

			uploaded := make([]models.File, 0, len(resp.Files))
			for _, f := range resp.Files {
				uploaded = append(uploaded, *f)
			}
			s.dispatch(state.FilesUploaded{Files: uploaded, Errors: resp.Errors})

			printFiles(uploaded)
			for _, e := range resp.Errors {
				fmt.Fprintf(os.Stderr, "failed: %s: %s\n", e.Filename, e.Error)
			}
			if s.State.Files.Error != "" {
				return fmt.Errorf("%s", s.State.Files.Error)
			}
			return nil
		})(cmd, args)
	},
}

var rmCMD = &cobra.Command{
	Use:   "rm <fileId>",
	Short: "delete a file",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, s *session, args []string) error {
		if err := s.authorized(ctx, func() error { return s.client.DeleteFile(ctx, args[0]) }); err != nil {
			return err
		}
		s.dispatch(state.FileDeleted{ID: args[0]})
		fmt.Println("deleted", args[0])
		return nil
	}),
}

var mvCMD = &cobra.Command{
	Use:   "mv <fileId>",
	Short: "move a file into --folder, or out of any folder without it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folderID := optional(cmd, "folder")

		return run(func(ctx context.Context, s *session, args []string) error {
			var file *models.File
			err := s.authorized(ctx, func() (err error) {
				file, err = s.client.MoveFile(ctx, args[0], folderID)
				return err
			})
			if err != nil {
				return err
			}
			s.dispatch(state.FileMoved{File: *file})
			printFiles([]models.File{*file})
			return nil
		})(cmd, args)
	},
}

var foldersCMD = &cobra.Command{
	Use:   "folders",
	Short: "list folders of the current folder, or of --parent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		parentID := optional(cmd, "parent")

		return run(func(ctx context.Context, s *session, _ []string) error {
			if parentID == nil {
				parentID = s.State.Folders.CurrentFolderID
			}

			s.dispatch(state.FoldersPending{})
			var list []models.Folder
			err := s.authorized(ctx, func() (err error) {
				list, err = s.client.ListFolders(ctx, parentID)
				return err
			})
			if err != nil {
				s.dispatch(state.FoldersRejected{Error: err.Error()})
				return err
			}
			s.dispatch(state.FoldersFetched{Folders: list})
			printFolders(s.State.Folders.Items)
			return nil
		})(cmd, args)
	},
}

var cdCMD = &cobra.Command{
	Use:   "cd [folderId]",
	Short: "open a folder; without argument go back to the root",
	Args:  cobra.MaximumNArgs(1),
	RunE: run(func(ctx context.Context, s *session, args []string) error {
		if len(args) == 0 || args[0] == "/" {
			s.dispatch(state.FolderNavigated{})
			fmt.Println("/")
			return nil
		}

		var path []models.Folder
		err := s.authorized(ctx, func() (err error) {
			path, err = s.client.FolderPath(ctx, args[0])
			return err
		})
		if err != nil {
			return err
		}
		s.dispatch(state.FolderNavigated{FolderID: &args[0], Path: path})

		breadcrumb := ""
		for _, f := range path {
			breadcrumb += "/" + f.Name
		}
		fmt.Println(breadcrumb)
		return nil
	}),
}

var mkdirCMD = &cobra.Command{
	Use:   "mkdir <name>",
	Short: "create a folder in the current folder, or in --parent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parentID := optional(cmd, "parent")
		color, _ := cmd.Flags().GetString("color")

		return run(func(ctx context.Context, s *session, args []string) error {
			if parentID == nil {
				parentID = s.State.Folders.CurrentFolderID
			}

			var created *models.Folder
			err := s.authorized(ctx, func() (err error) {
				created, err = s.client.CreateFolder(ctx, models.CreateFolderRequest{Name: args[0], ParentID: parentID, Color: color})
				return err
			})
			if err != nil {
				return err
			}
			s.dispatch(state.FolderCreated{Folder: *created})
			printFolders([]models.Folder{*created})
			return nil
		})(cmd, args)
	},
}

var renameCMD = &cobra.Command{
	Use:   "rename <folderId>",
	Short: "rename, recolor or move a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.UpdateFolderRequest{
			Name:  optional(cmd, "name"),
			Color: optional(cmd, "color"),
		}
		if p := optional(cmd, "parent"); p != nil {
			req.ParentID = models.Some(*p)
		}

		return run(func(ctx context.Context, s *session, args []string) error {
			var updated *models.Folder
			err := s.authorized(ctx, func() (err error) {
				updated, err = s.client.UpdateFolder(ctx, args[0], req)
				return err
			})
			if err != nil {
				return err
			}
			s.dispatch(state.FolderUpdated{Folder: *updated})
			printFolders([]models.Folder{*updated})
			return nil
		})(cmd, args)
	},
}

var rmdirCMD = &cobra.Command{
	Use:   "rmdir <folderId>",
	Short: "delete an empty folder",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, s *session, args []string) error {
		if err := s.authorized(ctx, func() error { return s.client.DeleteFolder(ctx, args[0]) }); err != nil {
			return err
		}
		s.dispatch(state.FolderDeleted{ID: args[0]})
		fmt.Println("deleted", args[0])
		return nil
	}),
}

func init() {
	lsCMD.Flags().String("type", "", "MIME type prefix, e.g. image/")
	lsCMD.Flags().String("folder", "", "folder id; empty for unfiled files")
	uploadCMD.Flags().String("folder", "", "target folder id")
	mvCMD.Flags().String("folder", "", "target folder id")
	foldersCMD.Flags().String("parent", "", "parent folder id; empty for root")
	mkdirCMD.Flags().String("parent", "", "parent folder id; empty for root")
	mkdirCMD.Flags().String("color", "", "folder color, e.g. #3B82F6")
	renameCMD.Flags().String("name", "", "new name")
	renameCMD.Flags().String("color", "", "new color")
	renameCMD.Flags().String("parent", "", "new parent folder id; empty moves to root")

	rootCMD.AddCommand(registerCMD, loginCMD, logoutCMD, lsCMD, uploadCMD, rmCMD, mvCMD,
		foldersCMD, cdCMD, mkdirCMD, renameCMD, rmdirCMD)
}

func printFiles(files []models.File) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSIZE\tFOLDER\tURL")
	for _, f := range files {
		folder := "-"
		if f.FolderID != nil {
			folder = *f.FolderID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", f.ID, f.Filename, f.MimeType, f.Size, folder, f.URL)
	}
	w.Flush()
}

func printFolders(folders []models.Folder) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOLOR\tPARENT")
	for _, f := range folders {
		parent := "/"
		if f.ParentID != nil {
			parent = *f.ParentID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, f.Name, f.Color, parent)
	}
	w.Flush()
}
