package models_test

import (
	"github.com/verenigingen/boekhouden-import/internal/models"
)

func (suite *TestSuiteStandard) createTestRun(company string) models.ImportRun {
	run := models.ImportRun{
		Company: company,
		Status:  models.RunQueued,
	}
	suite.Require().NoError(suite.db.Create(&run).Error)

	return run
}

func (suite *TestSuiteStandard) TestRunStart() {
	run := suite.createTestRun("vereniging")

	suite.Require().NoError(run.Start(suite.db))
	suite.Assert().Equal(models.RunRunning, run.Status)
	suite.Require().NotNil(run.StartedAt)
}

func (suite *TestSuiteStandard) TestRunStartExclusivePerCompany() {
	first := suite.createTestRun("vereniging")
	suite.Require().NoError(first.Start(suite.db))

	second := suite.createTestRun("vereniging")
	suite.Assert().ErrorIs(second.Start(suite.db), models.ErrRunActiveForCompany)

	// A run for another company is unaffected
	other := suite.createTestRun("stichting")
	suite.Assert().NoError(other.Start(suite.db))
}

func (suite *TestSuiteStandard) TestRunFinishReleasesCompany() {
	first := suite.createTestRun("vereniging")
	suite.Require().NoError(first.Start(suite.db))
	suite.Require().NoError(first.Finish(suite.db, models.RunCompleted, `{"processed":0}`))

	second := suite.createTestRun("vereniging")
	suite.Assert().NoError(second.Start(suite.db))
}

func (suite *TestSuiteStandard) TestRunFinishPersistsCounters() {
	run := suite.createTestRun("vereniging")
	suite.Require().NoError(run.Start(suite.db))

	run.Processed = 10
	run.Created = 7
	run.SkippedExisting = 2
	run.FailedRecords = 1
	suite.Require().NoError(run.Finish(suite.db, models.RunCompleted, ""))

	reloaded, err := models.RunByID(suite.db, run.ID)
	suite.Require().NoError(err)
	suite.Assert().Equal(models.RunCompleted, reloaded.Status)
	suite.Assert().Equal(uint(10), reloaded.Processed)
	suite.Assert().Equal(uint(7), reloaded.Created)
	suite.Assert().Equal(uint(2), reloaded.SkippedExisting)
	suite.Assert().Equal(uint(1), reloaded.FailedRecords)
	suite.Assert().NotNil(reloaded.FinishedAt)
}

func (suite *TestSuiteStandard) TestRunCancel() {
	run := suite.createTestRun("vereniging")
	suite.Require().NoError(run.Start(suite.db))

	suite.Require().NoError(run.Cancel(suite.db))
	suite.Assert().True(run.CancelRequested(suite.db))

	// Finished runs cannot be cancelled
	finished := suite.createTestRun("stichting")
	suite.Require().NoError(finished.Start(suite.db))
	suite.Require().NoError(finished.Finish(suite.db, models.RunCompleted, ""))
	suite.Assert().ErrorIs(finished.Cancel(suite.db), models.ErrRunNotCancellable)
}

func (suite *TestSuiteStandard) TestFailedRecordsForRun() {
	run := suite.createTestRun("vereniging")

	for _, category := range []models.ErrorCategory{
		models.CategoryMissingReference,
		models.CategoryMissingReference,
		models.CategoryUnbalancedJournal,
	} {
		record := models.FailedRecord{
			RunID:         run.ID,
			RecordKind:    "mutation",
			ErrorCategory: category,
			ErrorMessage:  "test failure",
		}
		suite.Require().NoError(suite.db.Create(&record).Error)
	}

	all, err := models.FailedRecordsForRun(suite.db, run.ID, "")
	suite.Require().NoError(err)
	suite.Assert().Len(all, 3)

	missing, err := models.FailedRecordsForRun(suite.db, run.ID, models.CategoryMissingReference)
	suite.Require().NoError(err)
	suite.Assert().Len(missing, 2)
}

func (suite *TestSuiteStandard) TestErrorCategoryRunFatal() {
	suite.Assert().True(models.CategorySessionExpired.RunFatal())
	suite.Assert().True(models.CategorySourcePagingFailed.RunFatal())
	suite.Assert().False(models.CategoryMissingReference.RunFatal())
	suite.Assert().False(models.CategoryReconciliationFailed.RunFatal())
}
